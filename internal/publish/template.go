package publish

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/template"

	"github.com/mrz1836/go-wpt-check/internal/report"
)

//go:embed templates/comment.md
var defaultTemplate string

// DefaultTemplate returns the built-in comment template
func DefaultTemplate() string {
	return defaultTemplate
}

// TemplateRenderer renders reports with text/template
type TemplateRenderer struct {
	// BaseDir resolves relative template paths, usually the workspace
	BaseDir string
}

// Render renders the report. source is a template file path or inline template text:
// a path that does not exist on disk is used verbatim as the template. An empty
// source uses the built-in template.
func (r TemplateRenderer) Render(source string, rep *report.RunReport) (string, error) {
	text, err := r.resolve(source)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New("comment").Funcs(template.FuncMap{
		"value": formatValue,
	}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rep); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// resolve returns the template text for source
func (r TemplateRenderer) resolve(source string) (string, error) {
	if source == "" {
		return defaultTemplate, nil
	}

	path := source
	if !filepath.IsAbs(path) && r.BaseDir != "" {
		path = filepath.Join(r.BaseDir, path)
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return source, nil
	}

	// #nosec G304 -- template path is user configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template %s: %w", path, err)
	}
	return string(data), nil
}

// formatValue prints whole numbers without decimals and fractions with three
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
