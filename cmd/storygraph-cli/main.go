// Command storygraph-cli builds and inspects the graph cache directly,
// without a running server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/storygraph/internal/app"
	"github.com/persistorai/storygraph/internal/cache"
	"github.com/persistorai/storygraph/internal/discovery"
	"github.com/persistorai/storygraph/internal/kv"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

// settings are the resolved connection options.
type settings struct {
	Upstream    string `yaml:"upstream"`
	Token       string `yaml:"token"`
	Backend     string `yaml:"backend"`
	BadgerPath  string `yaml:"badger_path"`
	RedisAddr   string `yaml:"redis_addr"`
	DatabaseURL string `yaml:"database_url"`
}

var defaults = settings{
	Upstream:   "http://localhost:8080",
	Backend:    kv.BackendBadger,
	BadgerPath: "./data/graphcache",
	RedisAddr:  "localhost:6379",
}

var (
	pipeline    *app.App
	flags       settings
	flagFmt     string
	flagProfile string
	flagVerbose bool
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("storygraph-cli version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("storygraph-cli version %s-dev", version)
}

// configFile is ~/.storygraph.yaml.
type configFile struct {
	Profiles      map[string]settings `yaml:"profiles"`
	ActiveProfile string              `yaml:"active_profile"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "storygraph-cli",
		Short:   "Build and inspect per-event character graph caches",
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			resolved := resolveConfig(cmd.Flags().Changed, flags)

			log := logrus.New()
			log.SetOutput(os.Stderr)
			log.SetLevel(logrus.WarnLevel)
			if flagVerbose {
				log.SetLevel(logrus.DebugLevel)
			}

			a, err := app.New(cmd.Context(), app.Options{
				Store: kv.OpenConfig{
					Backend:     resolved.Backend,
					BadgerPath:  resolved.BadgerPath,
					RedisAddr:   resolved.RedisAddr,
					DatabaseURL: resolved.DatabaseURL,
				},
				UpstreamURL: resolved.Upstream,
				Token:       resolved.Token,
				Cache:       cache.DefaultOptions(),
				Discovery:   discovery.DefaultOptions(),
			}, log)
			if err != nil {
				return err
			}

			pipeline = a

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if pipeline != nil {
				pipeline.Close() //nolint:errcheck
			}
		},
		SilenceUsage: true,
	}
	root.SetVersionTemplate("{{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&flags.Upstream, "upstream", defaults.Upstream, "Upstream event API URL (env: STORYGRAPH_UPSTREAM)")
	pf.StringVar(&flags.Backend, "backend", defaults.Backend, "Cache backend: memory|badger|redis|postgres")
	pf.StringVar(&flags.BadgerPath, "badger-path", defaults.BadgerPath, "Badger data directory")
	pf.StringVar(&flags.RedisAddr, "redis-addr", defaults.RedisAddr, "Redis address")
	pf.StringVar(&flagFmt, "format", "json", "Output format: json|table")
	pf.StringVar(&flagProfile, "profile", "", "Profile from ~/.storygraph.yaml")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log pipeline activity to stderr")

	root.AddCommand(newWarmCmd())
	root.AddCommand(newStateCmd())
	root.AddCommand(newChapterCmd())
	root.AddCommand(newSummaryCmd())
	root.AddCommand(newInvalidateCmd())

	return root
}

// resolveConfig merges, in priority order: explicitly set flags, env vars,
// the selected profile, then the flag defaults already held in fromFlags.
func resolveConfig(changed func(name string) bool, fromFlags settings) settings {
	out := fromFlags
	profile := loadProfile(flagProfile)

	pick := func(dst *string, flag, env, fromProfile string) {
		if changed(flag) {
			return
		}
		if env != "" {
			if v := os.Getenv(env); v != "" {
				*dst = v
				return
			}
		}
		if fromProfile != "" {
			*dst = fromProfile
		}
	}

	pick(&out.Upstream, "upstream", "STORYGRAPH_UPSTREAM", profile.Upstream)
	pick(&out.Backend, "backend", "STORYGRAPH_BACKEND", profile.Backend)
	pick(&out.BadgerPath, "badger-path", "", profile.BadgerPath)
	pick(&out.RedisAddr, "redis-addr", "", profile.RedisAddr)

	out.Token = os.Getenv("STORYGRAPH_TOKEN")
	if out.Token == "" {
		out.Token = profile.Token
	}

	out.DatabaseURL = os.Getenv("DATABASE_URL")
	if out.DatabaseURL == "" {
		out.DatabaseURL = profile.DatabaseURL
	}

	return out
}

// loadProfile reads the named profile, falling back to active_profile and
// then "default". A missing or unreadable file yields zero settings.
func loadProfile(name string) settings {
	home, err := os.UserHomeDir()
	if err != nil {
		return settings{}
	}

	data, err := os.ReadFile(filepath.Join(home, ".storygraph.yaml"))
	if err != nil {
		return settings{}
	}

	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring ~/.storygraph.yaml: %v\n", err)
		return settings{}
	}

	if name == "" {
		name = cfg.ActiveProfile
	}
	if name == "" {
		name = "default"
	}

	return cfg.Profiles[name]
}
