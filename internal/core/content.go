package core

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
)

type (
	Profile struct {
		Name        string `yaml:"name" json:"name"`
		Tagline     string `yaml:"tagline" json:"tagline"`
		Location    string `yaml:"location" json:"location"`
		Email       string `yaml:"email" json:"email"`
		GitHub      string `yaml:"github" json:"github"`
		GitHubLogin string `yaml:"github_login" json:"github_login"`
		LinkedIn    string `yaml:"linkedin" json:"linkedin"`
		Website     string `yaml:"website" json:"website"`
		BioShort    string `yaml:"bio_short" json:"bio_short"`
		BioLong     string `yaml:"bio_long" json:"bio_long"`
	}

	Project struct {
		ID                int      `yaml:"id" json:"id"`
		Slug              string   `yaml:"slug" json:"slug"`
		Title             string   `yaml:"title" json:"title"`
		Description       string   `yaml:"description" json:"description"`
		MobileDescription string   `yaml:"mobile_description" json:"mobile_description"`
		Summary           string   `yaml:"summary" json:"summary"`
		Challenges        string   `yaml:"challenges" json:"challenges"`
		Learnings         []string `yaml:"learnings" json:"learnings"`
		Tech              []string `yaml:"tech" json:"tech"`
		Hosting           []string `yaml:"hosting" json:"hosting"`
		LiveDemo          string   `yaml:"live_demo" json:"live_demo"`
		GitHubURL         string   `yaml:"github" json:"github"`
		Thumbnail         string   `yaml:"thumbnail" json:"thumbnail"`
		Category          string   `yaml:"category" json:"category"`
		Date              string   `yaml:"date" json:"date"` // YYYY-MM
	}

	BlogPost struct {
		ID      string   `yaml:"id" json:"id"`
		Title   string   `yaml:"title" json:"title"`
		Date    string   `yaml:"date" json:"date"` // YYYY-MM-DD
		Excerpt string   `yaml:"excerpt" json:"excerpt"`
		Content string   `yaml:"content" json:"content"`
		Tags    []string `yaml:"tags" json:"tags"`
	}

	Skill struct {
		Key   string `yaml:"key" json:"key"`
		Name  string `yaml:"name" json:"name"`
		Group string `yaml:"group" json:"group"`
	}

	// Catalog is the full static content of the site.
	Catalog struct {
		Profile  Profile    `yaml:"profile"`
		Projects []Project  `yaml:"projects"`
		Blogs    []BlogPost `yaml:"blogs"`
		Skills   []Skill    `yaml:"skills"`
	}

	// TagCount is a blog tag with the number of posts carrying it.
	TagCount struct {
		Tag   string
		Count int
	}
)

var (
	ErrEmptyTitle   = errors.New("empty title")
	ErrDuplicateID  = errors.New("duplicate id")
	ErrInvalidDate  = errors.New("invalid date")
	ErrEmptyProfile = errors.New("profile name is required")
)

// Validate checks identifiers are unique and dates parse.
func (c Catalog) Validate() error {
	if strings.TrimSpace(c.Profile.Name) == "" {
		return ErrEmptyProfile
	}
	ids := map[int]bool{}
	slugs := map[string]bool{}
	for _, p := range c.Projects {
		if strings.TrimSpace(p.Title) == "" {
			return fmt.Errorf("project %d: %w", p.ID, ErrEmptyTitle)
		}
		if ids[p.ID] {
			return fmt.Errorf("project %d: %w", p.ID, ErrDuplicateID)
		}
		ids[p.ID] = true
		if p.Slug != "" {
			if slugs[p.Slug] {
				return fmt.Errorf("project slug %q: %w", p.Slug, ErrDuplicateID)
			}
			slugs[p.Slug] = true
		}
		if p.Date != "" {
			if _, err := time.Parse("2006-01", p.Date); err != nil {
				return fmt.Errorf("project %d date %q: %w", p.ID, p.Date, ErrInvalidDate)
			}
		}
	}
	blogIDs := map[string]bool{}
	for _, b := range c.Blogs {
		if strings.TrimSpace(b.Title) == "" {
			return fmt.Errorf("blog %q: %w", b.ID, ErrEmptyTitle)
		}
		if blogIDs[b.ID] {
			return fmt.Errorf("blog %q: %w", b.ID, ErrDuplicateID)
		}
		blogIDs[b.ID] = true
		if _, err := time.Parse(dayLayout, b.Date); err != nil {
			return fmt.Errorf("blog %q date %q: %w", b.ID, b.Date, ErrInvalidDate)
		}
	}
	return nil
}

// FeaturedProjects returns the first n projects in catalog order.
func FeaturedProjects(ps []Project, n int) []Project {
	if n > len(ps) {
		n = len(ps)
	}
	if n < 0 {
		n = 0
	}
	return append([]Project(nil), ps[:n]...)
}

func FindProject(ps []Project, id int) (Project, bool) {
	for _, p := range ps {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

func FindBlog(bs []BlogPost, id string) (BlogPost, bool) {
	for _, b := range bs {
		if b.ID == id {
			return b, true
		}
	}
	return BlogPost{}, false
}

// Recommend returns up to n items not matched by exclude, chosen by a
// Fisher-Yates shuffle driven by rng. The input slice is left untouched.
// A negative n is treated as zero.
func Recommend[T any](items []T, exclude func(T) bool, n int, rng *rand.Rand) []T {
	if n < 0 {
		n = 0
	}
	pool := make([]T, 0, len(items))
	for _, it := range items {
		if exclude != nil && exclude(it) {
			continue
		}
		pool = append(pool, it)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	for i := len(pool) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

// SortBlogsByDate returns a copy ordered newest first. Equal dates keep catalog order.
func SortBlogsByDate(bs []BlogPost) []BlogPost {
	out := append([]BlogPost(nil), bs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	return out
}

// LatestBlog returns the most recent post.
func LatestBlog(bs []BlogPost) (BlogPost, bool) {
	sorted := SortBlogsByDate(bs)
	if len(sorted) == 0 {
		return BlogPost{}, false
	}
	return sorted[0], true
}

// BlogTags returns every tag in use, alphabetically, with its post count.
func BlogTags(bs []BlogPost) []TagCount {
	counts := map[string]int{}
	for _, b := range bs {
		seen := map[string]bool{}
		for _, t := range b.Tags {
			if seen[t] {
				continue
			}
			seen[t] = true
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TagCount{Tag: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// FilterBlogsByTag returns posts carrying tag; an empty tag returns all posts.
func FilterBlogsByTag(bs []BlogPost, tag string) []BlogPost {
	if tag == "" {
		return append([]BlogPost(nil), bs...)
	}
	var out []BlogPost
	for _, b := range bs {
		for _, t := range b.Tags {
			if t == tag {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// FormatClock renders t as a 12-hour clock, e.g. "03:04:05 PM".
func FormatClock(t time.Time) string {
	return t.Format("03:04:05 PM")
}
