// Package webui embeds the collect playground served at the root of the
// API server.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFS embed.FS

// StaticFS returns the playground files.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// Handler serves the playground.
func Handler() http.Handler {
	return http.FileServer(StaticFS())
}
