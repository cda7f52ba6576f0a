package handlers

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses the embedded page templates. Pages are addressed by file
// name, e.g. "home.tmpl".
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.tmpl"))
}

// Static serves the embedded stylesheet and images.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

// memberImages are the pictures the members page rotates through.
var memberImages = []string{"ale.svg", "lager.svg", "stout.svg"}
