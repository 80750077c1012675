// Package web holds the dashboard page and its assets, compiled into the
// server binary.
package web

import "embed"

// TemplatesFS holds dashboard.html.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the refresh script served under /static/.
//
//go:embed static/*.css static/*.js
var StaticFS embed.FS
