// Package configs provides embedded configuration defaults for covrag.
//
// Files are embedded at build time with //go:embed so they are
// available in every distribution. The topic table can be overridden
// at runtime with a data-dir copy; the embedded version is the
// fallback.
package configs

import _ "embed"

// DefaultTopics is the built-in topic cluster table used by anchor
// injection when no override file exists.
//
//go:embed topics.yaml
var DefaultTopics []byte

// ConfigTemplate is the annotated YAML config written by `covrag init`.
//
//go:embed config.example.yaml
var ConfigTemplate string
