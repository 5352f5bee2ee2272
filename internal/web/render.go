package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/brewgator/block-explorer/internal/db"
	"github.com/brewgator/block-explorer/internal/explorer"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page is everything the home page shows.
type Page struct {
	Title    string
	Network  string
	State    explorer.ViewState
	Feed     explorer.Snapshot
	Searches []db.SearchEntry
}

type Renderer struct {
	tmpl *template.Template
}

func New() (*Renderer, error) {
	tmpl, err := template.New("page").Funcs(template.FuncMap{
		"truncate": explorer.Truncate,
		"btc":      explorer.FormatBTC,
		"lookupLabel": func(k explorer.Kind) string {
			switch k {
			case explorer.KindTransaction:
				return "Transaction"
			case explorer.KindBlock:
				return "Block"
			case explorer.KindBalance:
				return "Address"
			default:
				return "Search"
			}
		},
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render writes the full page. Output is buffered so a template error never
// leaves a half-written page behind.
func (r *Renderer) Render(w io.Writer, page Page) error {
	if page.Title == "" {
		page.Title = "Real-time Bitcoin Explorer"
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "index.html", page); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
