package curriculum

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the catalog file looked up when Load is given a directory.
const DefaultFile = "curriculum.yaml"

//go:embed catalog
var embedded embed.FS

// Load reads a catalog from path. An empty path loads the embedded SAT
// catalog; a directory is searched for curriculum.yaml.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return LoadDefault()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}
	if info.IsDir() {
		return LoadFS(os.DirFS(path), DefaultFile)
	}
	return LoadFS(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

// LoadDefault loads the embedded SAT catalog.
func LoadDefault() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "catalog")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub, "sat.yaml")
}

// LoadFS reads, validates and indexes the catalog file name in fsys.
// Teaching notes are read from the same filesystem.
func LoadFS(fsys fs.FS, name string) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	if err := validateDocument(data); err != nil {
		return nil, fmt.Errorf("validating %s: %w", name, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	c, err := NewCatalog(doc.Name, doc.Units, doc.Facets)
	if err != nil {
		return nil, fmt.Errorf("building catalog %s: %w", name, err)
	}

	for _, u := range c.units {
		notesPath := u.NotesFile
		if notesPath == "" {
			notesPath = u.ID + ".teaching.md"
		}
		notes, err := fs.ReadFile(fsys, notesPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && u.NotesFile == "" {
				continue
			}
			return nil, fmt.Errorf("reading teaching notes for %s: %w", u.ID, err)
		}
		c.teachingNotes[u.ID] = string(notes)
	}

	slog.Info("curriculum loaded",
		"catalog", c.name,
		"units", len(c.units),
		"facets", len(c.facets),
		"teaching_notes", len(c.teachingNotes),
	)
	return c, nil
}

func validateDocument(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing yaml: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("catalog is empty")
	}

	schema, err := embedded.ReadFile("catalog/schema.json")
	if err != nil {
		return err
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("running schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
}
