// -----------------------------------------------------------------------
// Package report renders a dashboard as markdown, HTML or PDF. Markdown
// comes from the report templates; HTML and PDF are derived from it.
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ternarybob/vera/internal/models"
	"github.com/ternarybob/vera/internal/templates"
)

// Format is an output format
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat accepts md, markdown, html and pdf
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("unknown report format %q (md, html, pdf)", s)
}

// Service renders reports
type Service struct {
	templatesDir string
	markdown     goldmark.Markdown
	logger       arbor.ILogger
}

// NewService creates a report renderer. templatesDir may hold overrides of
// the embedded templates.
func NewService(templatesDir string, logger arbor.ILogger) *Service {
	return &Service{
		templatesDir: templatesDir,
		markdown:     goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
		logger:       logger,
	}
}

// Render produces the report bytes in the requested format
func (s *Service) Render(data *models.DashboardData, format Format) ([]byte, error) {
	title, md, err := s.Markdown(data)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatMarkdown:
		return []byte(md), nil
	case FormatHTML:
		return s.HTML(title, md)
	case FormatPDF:
		return s.PDF(title, md)
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}

// WriteFile renders into path
func (s *Service) WriteFile(data *models.DashboardData, format Format, path string) error {
	out, err := s.Render(data, format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	s.logger.Info().
		Str("asset_id", data.AssetID).
		Str("format", string(format)).
		Str("path", path).
		Int("bytes", len(out)).
		Msg("Report written")
	return nil
}

// Markdown executes the card template matching the dashboard mode
func (s *Service) Markdown(data *models.DashboardData) (string, string, error) {
	name := templates.RiskCard
	if data.IsIndex() {
		name = templates.IndexCard
	}
	tmpl, err := templates.GetTemplate(name, s.templatesDir)
	if err != nil {
		return "", "", err
	}

	title, err := execute(name+".title", tmpl.Title, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(name, tmpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(title), strings.TrimSpace(body) + "\n", nil
}

// HTML wraps the converted markdown in a minimal standalone page
func (s *Service) HTML(title, md string) ([]byte, error) {
	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	template.HTMLEscape(&page, []byte(title))
	page.WriteString("</title>\n<style>body{font-family:sans-serif;max-width:860px;margin:2em auto}" +
		"table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px 8px}</style>\n</head><body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body></html>\n")
	return page.Bytes(), nil
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return "n/a"
		}
		return t.Format(models.DateLayout)
	},
	"num": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v*100)
	},
	"opt": func(v *float64) string {
		if v == nil {
			return "N/A"
		}
		return fmt.Sprintf("%.2f", *v)
	},
	"optpct": func(v *float64) string {
		if v == nil {
			return "N/A"
		}
		return fmt.Sprintf("%+.1f%%", *v*100)
	},
}

func execute(name, text string, data *models.DashboardData) (string, error) {
	t, err := template.New(name).Funcs(funcs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
