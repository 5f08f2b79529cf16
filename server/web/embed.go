// Package web holds the browser viewer served at the site root.
package web

import _ "embed"

//go:embed index.html
var IndexHTML []byte
