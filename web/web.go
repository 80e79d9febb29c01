// Package web embeds the dashboard assets.
package web

import "embed"

//go:embed index.html app.js
var FS embed.FS
