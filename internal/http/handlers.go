package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"portfolio/internal/content"
	"portfolio/internal/contrib"
	"portfolio/internal/core"
	"portfolio/internal/log"
)

const (
	featuredCount    = 3
	recommendedCount = 2
)

// loginPattern matches GitHub login rules: alphanumerics and single inner hyphens, max 39.
var loginPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var (
		view     homeView
		projects []core.Project
		blogs    []core.BlogPost
		skills   []core.Skill
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		view.Profile, err = s.content.Profile(gctx)
		return err
	})
	g.Go(func() (err error) {
		projects, err = s.content.ListProjects(gctx)
		return err
	})
	g.Go(func() (err error) {
		blogs, err = s.content.ListBlogs(gctx)
		return err
	})
	g.Go(func() (err error) {
		skills, err = s.content.ListSkills(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.LogError(ctx, "Failed to load page content", err, log.OpLoad, nil)
		http.Error(w, "failed to load content", http.StatusInternalServerError)
		return
	}

	if login := s.resolveIdentity(view.Profile.GitHubLogin); s.stats != nil && login != "" {
		sctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		stats, err := s.stats.FetchUserStats(sctx, login)
		cancel()
		if err != nil {
			logger.WarnContext(ctx, "GitHub profile stats unavailable",
				log.FieldIdentity, login, log.FieldError, err)
		} else {
			view.Stats = &stats
		}
	}

	view.Featured = core.FeaturedProjects(projects, featuredCount)
	if latest, ok := core.LatestBlog(blogs); ok {
		view.Latest = &latest
	}
	view.Skills = groupSkills(skills)
	view.Clock = core.FormatClock(s.now())

	s.render(w, r, http.StatusOK, "index.html", view)
}

// handleContributionsPartial always renders a partial: an unavailable result or
// a failure shows the fallback message instead of the chart.
func (s *Server) handleContributionsPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := s.resolveIdentity("")
	if identity == "" {
		identity = s.profileLogin(ctx)
	}

	res, err := s.summary(ctx, identity)
	if err != nil {
		log.FromContext(ctx).LogError(ctx, "Failed to build contribution summary", err, log.OpAggregate,
			log.NewFields().WithIdentity(identity))
		res = contrib.Result{Status: contrib.StatusUnavailable, Identity: identity, Year: s.now().UTC().Year()}
	}
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, http.StatusOK, "contributions.html", newContributionsView(res))
}

func (s *Server) handleContributionsAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := strings.TrimSpace(r.URL.Query().Get("login"))
	if identity == "" {
		identity = s.resolveIdentity(s.profileLogin(ctx))
	}
	if !loginPattern.MatchString(identity) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid login"})
		return
	}

	res, err := s.summary(ctx, identity)
	var dfe *core.DataFormatError
	switch {
	case errors.As(err, &dfe):
		log.FromContext(ctx).LogError(ctx, "Contribution data rejected", err, log.OpAggregate,
			log.NewFields().WithIdentity(identity))
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "invalid_data",
			"error":  dfe.Error(),
		})
	case err != nil:
		log.FromContext(ctx).LogError(ctx, "Contribution summary failed", err, log.OpFetch,
			log.NewFields().WithIdentity(identity))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	case !res.Available():
		body := map[string]any{
			"status":   res.Status,
			"identity": res.Identity,
			"year":     res.Year,
		}
		var fe *core.FetchError
		if errors.As(res.Cause, &fe) {
			body["reason"] = fe.Kind
		}
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := s.content.Profile(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	projects, err := s.content.ListProjects(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "projects.html", projectsView{Profile: profile, Projects: projects})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.handleNotFound(w, r)
		return
	}
	p, err := s.content.Project(ctx, id)
	if errors.Is(err, content.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	profile, err := s.content.Profile(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	projects, err := s.content.ListProjects(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	recs := core.Recommend(projects, func(o core.Project) bool { return o.ID == p.ID }, recommendedCount, s.newRand())
	s.render(w, r, http.StatusOK, "project.html", projectView{Profile: profile, Project: p, Recommended: recs})
}

func (s *Server) handleBlogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := s.content.Profile(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	blogs, err := s.content.ListBlogs(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	s.render(w, r, http.StatusOK, "blogs.html", blogsView{
		Profile: profile,
		Blogs:   core.SortBlogsByDate(core.FilterBlogsByTag(blogs, tag)),
		Tags:    core.BlogTags(blogs),
		Tag:     tag,
	})
}

func (s *Server) handleBlog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	b, err := s.content.Blog(ctx, mux.Vars(r)["id"])
	if errors.Is(err, content.ErrNotFound) {
		s.handleNotFound(w, r)
		return
	}
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	profile, err := s.content.Profile(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	blogs, err := s.content.ListBlogs(ctx)
	if err != nil {
		s.contentError(w, r, err)
		return
	}
	recs := core.Recommend(blogs, func(o core.BlogPost) bool { return o.ID == b.ID }, recommendedCount, s.newRand())
	s.render(w, r, http.StatusOK, "blog.html", blogView{Profile: profile, Blog: b, Recommended: recs})
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, r, http.StatusOK, "clock.html", core.FormatClock(s.now()))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "not_found.html", notFoundView{Path: r.URL.Path})
}

// summary runs the pipeline with the fetch timeout applied.
func (s *Server) summary(ctx context.Context, identity string) (contrib.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	return s.contributions.GetContributionSummary(ctx, identity, s.now())
}

// resolveIdentity prefers the configured identity over fallback.
func (s *Server) resolveIdentity(fallback string) string {
	if s.identity != "" {
		return s.identity
	}
	return strings.TrimSpace(fallback)
}

func (s *Server) profileLogin(ctx context.Context) string {
	p, err := s.content.Profile(ctx)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(p.GitHubLogin)
}

func (s *Server) contentError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContext(r.Context()).LogError(r.Context(), "Failed to load content", err, log.OpLoad, nil)
	http.Error(w, "failed to load content", http.StatusInternalServerError)
}

// render executes name into a buffer so a template failure still yields a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		http.Error(w, "templates unavailable", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Template render failed", err, log.OpRender,
			log.NewFields().With("template", name))
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
