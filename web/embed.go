// Package web embeds the dashboard page and its static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.html static/*
var assets embed.FS

// IndexTemplate is the name of the dashboard page template.
const IndexTemplate = "index.html"

// PageData is rendered into the dashboard page.
type PageData struct {
	Title                string
	Version              string
	CorrelationThreshold float64
	DistanceThreshold    float64
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"percent": func(v float64) float64 { return v * 100 },
	}).ParseFS(assets, "templates/*.html")
}

// StaticFS serves the embedded static directory.
func StaticFS() http.FileSystem {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
