// Package web embeds the document templates rendered by the API.
package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates/**/*.html
var Templates embed.FS
