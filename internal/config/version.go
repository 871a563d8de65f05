package config

// Version is the storygraph binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/storygraph/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
