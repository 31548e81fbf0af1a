// Package web embeds the drawing page and its static assets.
package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/index.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// PageData sizes the canvas and brush on the page to match the server surface.
type PageData struct {
	Width      int
	Height     int
	BrushWidth float64
}

func RenderIndex(w io.Writer, data PageData) error {
	return indexTemplate.Execute(w, data)
}

// Static serves the embedded script and stylesheet; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
