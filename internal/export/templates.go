package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

// SafeHTML marks an already-escaped string as safe for template output.
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var tabTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"safeHTML": SafeHTML,
	}

	templateContent, err := templateFS.ReadFile("templates/tab.html")
	if err != nil {
		tabTemplate = template.Must(template.New("tab").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	tabTemplate = template.Must(template.New("tab").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for tab template rendering
type TemplateData struct {
	Title       string
	ProjectName string
	ContentHTML template.HTML
	ExportedAt  time.Time
}

// RenderTabHTML renders the tab template with provided data
func RenderTabHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := tabTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.ProjectName}}</div>
  <div>{{.ContentHTML | safeHTML}}</div>
</body>
</html>`
