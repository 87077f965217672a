package notify

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names.
const (
	TemplateRequestFiled  = "request_filed.html"
	TemplateResponse      = "response.html"
	TemplateDeadlineAlert = "deadline_alert.html"
)

// MailData feeds every template.
type MailData struct {
	EntityName string
	EntityLogo string
	Recipient  string
	Subject    string
	Radicado   string
	Body       string
	Deadline   time.Time
}

// Renderer renders the embedded email templates.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("mail").Funcs(template.FuncMap{
		"date": func(t time.Time) string { return t.Format("2006-01-02") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// MustRenderer panics when the embedded templates fail to parse.
func MustRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes the named template.
func (r *Renderer) Render(name string, data MailData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// ContentText extracts the human readable text of a structured payload:
// a bare JSON string, or the "texto" field of an object.
func ContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var obj struct {
		Texto *string `json:"texto"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Texto != nil {
		return strings.TrimSpace(*obj.Texto)
	}
	return ""
}
