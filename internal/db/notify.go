package db

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/dbpool"
)

// validChannel matches safe PostgreSQL LISTEN channel names.
var validChannel = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	// ChangeChannel is notified by a trigger whenever a cache row is
	// overwritten or deleted.
	ChangeChannel = "graph_cache_changes"

	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// Evicter drops a key from a local mirror.
type Evicter interface {
	Evict(key string)
}

// InvalidationListener keeps in-memory mirrors on several instances coherent
// by evicting keys that another instance rewrote or deleted.
type InvalidationListener struct {
	log     *logrus.Logger
	pool    *dbpool.Pool
	evicter Evicter
	channel string
}

// NewInvalidationListener creates a listener on ChangeChannel.
func NewInvalidationListener(log *logrus.Logger, pool *dbpool.Pool, evicter Evicter) *InvalidationListener {
	return &InvalidationListener{
		log:     log,
		pool:    pool,
		evicter: evicter,
		channel: ChangeChannel,
	}
}

// Start verifies connectivity, then listens in a background goroutine until
// ctx is cancelled, reconnecting with backoff after failures.
func (l *InvalidationListener) Start(ctx context.Context) error {
	if !validChannel.MatchString(l.channel) {
		return fmt.Errorf("invalidation listener: invalid channel name %q", l.channel)
	}

	if err := l.pool.Ping(ctx); err != nil {
		return fmt.Errorf("invalidation listener: database not reachable: %w", err)
	}

	go l.listen(ctx)

	return nil
}

func (l *InvalidationListener) listen(ctx context.Context) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		err := l.subscribe(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		l.log.WithError(err).WithField("retry_in", backoff).
			Warn("invalidation listener connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

func (l *InvalidationListener) subscribe(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	// LISTEN takes the channel inline, not as a parameter.
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("executing LISTEN: %w", err)
	}

	l.log.WithField("channel", l.channel).Info("invalidation listener started")

	for {
		if err := conn.Conn().PgConn().Conn().SetReadDeadline(time.Now().Add(2 * time.Minute)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			return fmt.Errorf("waiting for notification: %w", err)
		}

		l.handle(n)
	}
}

func (l *InvalidationListener) handle(n *pgconn.Notification) {
	if n.Payload == "" {
		return
	}

	l.log.WithFields(logrus.Fields{
		"channel": n.Channel,
		"pid":     n.PID,
		"key":     n.Payload,
	}).Debug("evicting mirrored cache entry")

	l.evicter.Evict(n.Payload)
}

// nextBackoff doubles the backoff with ±25% jitter, capped at maxBackoff.
func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffMultiplier
	if next > maxBackoff {
		next = maxBackoff
	}

	jitter := float64(next) * (0.75 + rand.Float64()*0.5) //nolint:gosec // jitter doesn't need crypto rand.

	return time.Duration(jitter)
}
