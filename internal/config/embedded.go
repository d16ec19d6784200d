package config

// EmbeddedTMDBKey is an API key injected at build time via ldflags.
// It serves as a default and can be overridden by environment
// variables or the config file.
//
// Build with:
//   go build -ldflags "-X 'github.com/keonramses/Cinephage-sub002/internal/config.EmbeddedTMDBKey=xxx'"
var EmbeddedTMDBKey string
