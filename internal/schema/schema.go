// Package schema declares the index templates for library and book partitions.
package schema

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ErrTemplateRejected means the engine did not accept a template. Writing data afterwards
// would produce indices with an undefined mapping.
var ErrTemplateRejected = errors.New("index template rejected")

// Template names double as the partition prefixes they cover ("library-*", "book-*").
const (
	LibraryTemplate = "library"
	BookTemplate    = "book"
)

//go:embed templates/*.json
var files embed.FS

// Template is a named, fully rendered index template body.
type Template struct {
	Name string
	Body []byte
}

// TemplateWriter is implemented by search.Client.
type TemplateWriter interface {
	PutIndexTemplate(ctx context.Context, name string, body []byte) error
}

// Templates renders the library and book templates. The shared Korean analysis settings are
// merged into each template's own settings.
func Templates() ([]Template, error) {
	var analysis map[string]any
	if err := readJSON("templates/analysis.json", &analysis); err != nil {
		return nil, err
	}

	var out []Template
	for _, name := range []string{LibraryTemplate, BookTemplate} {
		var tmpl map[string]any
		if err := readJSON("templates/"+name+".json", &tmpl); err != nil {
			return nil, err
		}

		inner, ok := tmpl["template"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("template %s: missing template section", name)
		}
		settings, _ := inner["settings"].(map[string]any)
		if settings == nil {
			settings = map[string]any{}
		}
		settings["analysis"] = analysis
		inner["settings"] = settings

		body, err := json.Marshal(tmpl)
		if err != nil {
			return nil, fmt.Errorf("encode template %s: %w", name, err)
		}
		out = append(out, Template{Name: name, Body: body})
	}
	return out, nil
}

func readJSON(path string, v any) error {
	raw, err := files.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Manager applies the templates before any partition is written.
type Manager struct {
	writer TemplateWriter
	logger *slog.Logger
}

// NewManager creates a schema manager writing through w.
func NewManager(w TemplateWriter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{writer: w, logger: logger}
}

// Apply declares every template. Declaring is idempotent; the first failure aborts.
func (m *Manager) Apply(ctx context.Context) error {
	templates, err := Templates()
	if err != nil {
		return err
	}

	for _, tmpl := range templates {
		if err := m.writer.PutIndexTemplate(ctx, tmpl.Name, tmpl.Body); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTemplateRejected, tmpl.Name, err)
		}
		m.logger.Info("Applied index template", "template", tmpl.Name)
	}
	return nil
}
