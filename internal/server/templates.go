package server

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/dgellow/idbroker/internal/log"
	"github.com/dgellow/idbroker/internal/oauth"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// pageBase holds the fields the shared layout reads
type pageBase struct {
	Title      string
	AppName    string
	RedirectTo string
}

// HomePageData is the landing page
type HomePageData struct {
	pageBase
	User string
}

// ConsentPageData is the approval screen shown to a signed-in user
type ConsentPageData struct {
	pageBase
	ClientID      string
	DisplayName   string
	Email         string
	Picture       string
	Scopes        []oauth.ScopeDescription
	SignedRequest string
	CSRFToken     string
}

// MessagePageData is used for failures, rejections and re-authentication prompts
type MessagePageData struct {
	pageBase
	Message  string
	IsError  bool
	LinkURL  string
	LinkText string
}

// ApprovedPageData sends the user agent back to the client
type ApprovedPageData struct {
	pageBase
	ClientID string
}

// renderPage executes the template into a buffer first so a template error
// never leaves a half-written page behind a success status
func renderPage(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		log.LogErrorWithFields("templates", "Failed to render page", map[string]any{
			"template": name,
			"error":    err.Error(),
		})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
