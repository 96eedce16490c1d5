// Package configs holds the configuration templates written by
// `blockindex config init`.
//
// The user template lands at ~/.config/blockindex/config.yaml and the graph
// template at .blockindex.yaml in the graph root. Both list every key with
// its default, commented where the default is usually right.
package configs

import _ "embed"

// UserConfigTemplate is the machine-wide configuration.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// GraphConfigTemplate is the per-graph configuration.
//
//go:embed graph-config.example.yaml
var GraphConfigTemplate string

// GraphConfigName is the file name of the per-graph configuration.
const GraphConfigName = ".blockindex.yaml"
