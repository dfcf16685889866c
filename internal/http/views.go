package http

import (
	"html/template"
	"sort"
	"strings"

	"portfolio/internal/contrib"
	"portfolio/internal/core"
	"portfolio/internal/github"
)

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

type (
	contributionBar struct {
		Label  string
		Count  int
		Height int    // percent of the tallest bar
		Level  string // CSS modifier
	}

	contributionsView struct {
		Available bool
		Identity  string
		Year      int
		Total     int
		Max       int
		Bars      []contributionBar
		Message   string
	}

	skillGroup struct {
		Name   string
		Skills []core.Skill
	}

	homeView struct {
		Profile  core.Profile
		Stats    *github.UserStats
		Featured []core.Project
		Latest   *core.BlogPost
		Skills   []skillGroup
		Clock    string
	}

	projectsView struct {
		Profile  core.Profile
		Projects []core.Project
	}

	projectView struct {
		Profile     core.Profile
		Project     core.Project
		Recommended []core.Project
	}

	blogsView struct {
		Profile core.Profile
		Blogs   []core.BlogPost
		Tags    []core.TagCount
		Tag     string
	}

	blogView struct {
		Profile     core.Profile
		Blog        core.BlogPost
		Recommended []core.BlogPost
	}

	notFoundView struct {
		Path string
	}
)

func newContributionsView(res contrib.Result) contributionsView {
	v := contributionsView{
		Available: res.Available(),
		Identity:  res.Identity,
		Year:      res.Year,
	}
	if !v.Available {
		v.Message = "Contribution data is unavailable right now."
		return v
	}
	v.Total = res.Summary.Total
	v.Max = res.Summary.Max
	v.Bars = make([]contributionBar, len(res.Buckets))
	for i, b := range res.Buckets {
		v.Bars[i] = contributionBar{
			Label:  b.Label,
			Count:  b.Count,
			Height: core.BarHeight(b.Count, res.Summary.Max),
			Level:  core.Intensity(b.Count, res.Summary.Max).String(),
		}
	}
	return v
}

// groupSkills keeps skills in catalog order within groups sorted by name.
func groupSkills(skills []core.Skill) []skillGroup {
	idx := map[string]int{}
	var groups []skillGroup
	for _, sk := range skills {
		i, ok := idx[sk.Group]
		if !ok {
			i = len(groups)
			idx[sk.Group] = i
			groups = append(groups, skillGroup{Name: sk.Group})
		}
		groups[i].Skills = append(groups[i].Skills, sk)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Name < groups[b].Name })
	return groups
}
