// Package templates embeds the built-in import template seeds.
package templates

import "embed"

// FS holds every *.yaml seed in this directory.
//
//go:embed *.yaml
var FS embed.FS
