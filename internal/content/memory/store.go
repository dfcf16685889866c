package memory

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"portfolio/internal/content"
	"portfolio/internal/core"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Store serves a catalog held in memory. It never changes after loading.
type Store struct {
	catalog core.Catalog
}

var _ content.Repository = (*Store)(nil)

// New wraps an already validated catalog.
func New(c core.Catalog) *Store {
	return &Store{catalog: c}
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Store, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Store, error) {
	var c core.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return New(c), nil
}

func (s *Store) Profile(_ context.Context) (core.Profile, error) {
	return s.catalog.Profile, nil
}

func (s *Store) ListProjects(_ context.Context) ([]core.Project, error) {
	return append([]core.Project(nil), s.catalog.Projects...), nil
}

func (s *Store) ListBlogs(_ context.Context) ([]core.BlogPost, error) {
	return append([]core.BlogPost(nil), s.catalog.Blogs...), nil
}

func (s *Store) ListSkills(_ context.Context) ([]core.Skill, error) {
	return append([]core.Skill(nil), s.catalog.Skills...), nil
}

// Project returns the project with id or content.ErrNotFound.
func (s *Store) Project(_ context.Context, id int) (core.Project, error) {
	p, ok := core.FindProject(s.catalog.Projects, id)
	if !ok {
		return core.Project{}, fmt.Errorf("project %d: %w", id, content.ErrNotFound)
	}
	return p, nil
}

// Blog returns the post with id or content.ErrNotFound.
func (s *Store) Blog(_ context.Context, id string) (core.BlogPost, error) {
	b, ok := core.FindBlog(s.catalog.Blogs, id)
	if !ok {
		return core.BlogPost{}, fmt.Errorf("blog %q: %w", id, content.ErrNotFound)
	}
	return b, nil
}
