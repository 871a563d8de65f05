// Package app assembles the graph cache pipeline from its parts: durable
// store, cache, manifest store, upstream client, discovery and the service
// facade. The server and the CLI both build on it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/client"
	"github.com/persistorai/storygraph/internal/builder"
	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/db"
	"github.com/persistorai/storygraph/internal/discovery"
	"github.com/persistorai/storygraph/internal/kv"
	"github.com/persistorai/storygraph/internal/manifest"
	"github.com/persistorai/storygraph/internal/materialize"
	"github.com/persistorai/storygraph/internal/service"
)

// janitorInterval is how often expired postgres rows are purged.
const janitorInterval = 5 * time.Minute

// Options configures the pipeline.
type Options struct {
	Store       kv.OpenConfig
	UpstreamURL string
	Token       string
	Cache       cache.Options
	Discovery   discovery.Options
}

// App is an assembled pipeline.
type App struct {
	Store     kv.Store
	Cache     *cache.Store
	Manifests *manifest.Store
	Upstream  *client.Client
	Graph     *service.GraphService
	log       *logrus.Logger
}

// New opens the durable store and wires every component on top of it.
func New(ctx context.Context, opts Options, log *logrus.Logger) (*App, error) {
	store, err := kv.Open(ctx, opts.Store, log)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", opts.Store.Backend, err)
	}

	mat, err := materialize.New(materialize.DefaultOptions())
	if err != nil {
		store.Close() //nolint:errcheck
		return nil, fmt.Errorf("creating materializer: %w", err)
	}

	var clientOpts []client.Option
	if opts.Token != "" {
		clientOpts = append(clientOpts, client.WithToken(opts.Token))
	}

	upstream := client.New(opts.UpstreamURL, clientOpts...)
	c := cache.New(store, log, opts.Cache)
	manifests := manifest.New(c, log)
	disc := discovery.New(c, manifests, upstream, builder.New(mat, log), log, opts.Discovery)

	return &App{
		Store:     store,
		Cache:     c,
		Manifests: manifests,
		Upstream:  upstream,
		Graph:     service.NewGraphService(c, manifests, upstream, disc, log),
		log:       log,
	}, nil
}

// StartMaintenance launches the backend's background jobs until ctx ends:
// value-log GC for badger, the expiry janitor and the cross-instance
// invalidation listener for postgres.
func (a *App) StartMaintenance(ctx context.Context) error {
	switch s := a.Store.(type) {
	case *kv.BadgerStore:
		go s.RunGC(ctx)
	case *kv.PostgresStore:
		go s.RunJanitor(ctx, janitorInterval)

		if err := db.NewInvalidationListener(a.log, s.Pool(), a.Cache).Start(ctx); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the durable store.
func (a *App) Close() error {
	return a.Store.Close()
}
