// Package handler contains the HTTP handlers. Handlers parse the request,
// call a service and write the response; they hold no business logic.
package handler

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed docs/openapi.json docs/docs.html
var docsFS embed.FS

// DocsHandler serves the OpenAPI document and a browsable reference page.
// Templates and the document are parsed once at construction.
type DocsHandler struct {
	templates *template.Template
	spec      []byte
	logger    *slog.Logger
}

func NewDocsHandler(logger *slog.Logger) (*DocsHandler, error) {
	tmpl, err := template.ParseFS(docsFS, "docs/docs.html")
	if err != nil {
		return nil, err
	}
	spec, err := docsFS.ReadFile("docs/openapi.json")
	if err != nil {
		return nil, err
	}
	return &DocsHandler{templates: tmpl, spec: spec, logger: logger}, nil
}

// HandleOpenAPI serves the OpenAPI 3.1 document.
//
// HTTP: GET /openapi.json
func (h *DocsHandler) HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(h.spec)
}

// HandleDocs renders the API reference page, which loads /openapi.json.
//
// HTTP: GET /docs
func (h *DocsHandler) HandleDocs(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Title":   "Backend API Documentation",
		"SpecURL": "/openapi.json",
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "docs", data); err != nil {
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
