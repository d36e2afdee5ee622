package message

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const defaultLocale = "en"

// RenderTemplate executes templates/<name>.<locale>.tmpl, falling back to the
// English variant when the locale has no translation.
func RenderTemplate(name, locale string, payload any) (string, error) {
	locale = normalizeLocale(locale)

	html, err := render(name, locale, payload)
	if err != nil && locale != defaultLocale {
		html, err = render(name, defaultLocale, payload)
	}
	if err != nil {
		return "", fmt.Errorf("rendering template %s (%s): %w", name, locale, err)
	}
	return html, nil
}

func render(name, locale string, payload any) (string, error) {
	path := fmt.Sprintf("templates/%s.%s.tmpl", name, locale)
	tmpl, err := template.ParseFS(templateFS, path)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" {
		return defaultLocale
	}
	// "pt-BR" -> "pt"
	if idx := strings.IndexAny(locale, "-_"); idx > 0 {
		locale = locale[:idx]
	}
	return locale
}
