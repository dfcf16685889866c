package content

import (
	"context"
	"errors"

	"portfolio/internal/core"
)

var ErrNotFound = errors.New("content not found")

type ProfileReader interface {
	Profile(ctx context.Context) (core.Profile, error)
}

type ProjectLister interface {
	ListProjects(ctx context.Context) ([]core.Project, error)
}

// ProjectReader returns a single project. A missing id wraps ErrNotFound.
type ProjectReader interface {
	Project(ctx context.Context, id int) (core.Project, error)
}

type BlogLister interface {
	ListBlogs(ctx context.Context) ([]core.BlogPost, error)
}

// BlogReader returns a single post. A missing id wraps ErrNotFound.
type BlogReader interface {
	Blog(ctx context.Context, id string) (core.BlogPost, error)
}

type SkillLister interface {
	ListSkills(ctx context.Context) ([]core.Skill, error)
}

// Repository is the read-only site content used by the web handlers.
type Repository interface {
	ProfileReader
	ProjectLister
	ProjectReader
	BlogLister
	BlogReader
	SkillLister
}
