package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/ldcasilang/sui-portfolio/internal/portfolio"
)

//go:embed templates/*.html
var templateFS embed.FS

var portfolioTemplate = template.Must(
	template.New("portfolio.html").
		Funcs(template.FuncMap{
			"formatDate": func(t time.Time, layout string) string {
				return t.Format(layout)
			},
		}).
		ParseFS(templateFS, "templates/portfolio.html"),
)

// TemplateData holds data for portfolio template rendering
type TemplateData struct {
	Record      portfolio.Record
	Identifier  string
	TxShort     string
	TxURL       string
	GeneratedAt time.Time
}

// RenderPortfolioHTML renders the portfolio template. Values are escaped by
// html/template.
func RenderPortfolioHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := portfolioTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
