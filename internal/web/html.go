package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/app.css
var appCSS []byte

var pages = []string{"dashboard", "list", "detail", "upload", "error"}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string {
		return "$" + d.StringFixed(2)
	},
	"optMoney": func(d *decimal.Decimal) string {
		if d == nil {
			return ""
		}
		return "$" + d.StringFixed(2)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "unknown"
		}
		return t.Format("Jan 2, 2006")
	},
	"ms": func(d time.Duration) int64 {
		return d.Milliseconds()
	},
	"seconds": func(d time.Duration) int {
		s := int(d.Round(time.Second) / time.Second)
		if s < 1 {
			s = 1
		}
		return s
	},
	"kb": func(size int64) string {
		return decimal.NewFromInt(size).Div(decimal.NewFromInt(1024)).StringFixed(1) + " KB"
	},
}

// parseTemplates parses each page together with the shared layout.
// The templates are embedded, so a parse failure is a programming error.
func parseTemplates() map[string]*template.Template {
	parsed := make(map[string]*template.Template, len(pages))
	for _, name := range pages {
		parsed[name] = template.Must(template.New("layout.html").Funcs(funcs).
			ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html"))
	}
	return parsed
}

// render executes a page into a buffer first so a template error never
// leaves a half-written response
func (s *Server) render(w http.ResponseWriter, status int, name string, p page) {
	var buf bytes.Buffer
	if err := s.templates[name].Execute(&buf, p); err != nil {
		slog.Error("Error rendering template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// renderError shows a message on the error page
func (s *Server) renderError(w http.ResponseWriter, status int, message string) {
	s.render(w, status, "error", page{Title: "Error", Body: errorView{Message: message}})
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}
