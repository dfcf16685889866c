package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"
)

// UserStats are the public profile figures shown in the hero section.
type UserStats struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	AvatarURL   string `json:"avatar_url"`
	HTMLURL     string `json:"html_url"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
}

// ProfileClient reads public user profiles through the GitHub REST API.
type ProfileClient struct {
	client      *github.Client
	rateLimiter *rate.Limiter
}

// NewProfileClient creates a REST client. An empty token makes anonymous calls.
func NewProfileClient(token string, rateLimit float64, httpClient *http.Client) *ProfileClient {
	if rateLimit <= 0 {
		rateLimit = 1
	}
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &ProfileClient{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
	}
}

// FetchUserStats gets the public profile of login.
func (c *ProfileClient) FetchUserStats(ctx context.Context, login string) (UserStats, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return UserStats{}, fmt.Errorf("rate limiter: %w", err)
	}

	user, _, err := c.client.Users.Get(ctx, login)
	if err != nil {
		return UserStats{}, fmt.Errorf("fetch user %q: %w", login, err)
	}

	return UserStats{
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		Bio:         user.GetBio(),
		AvatarURL:   user.GetAvatarURL(),
		HTMLURL:     user.GetHTMLURL(),
		PublicRepos: user.GetPublicRepos(),
		Followers:   user.GetFollowers(),
		Following:   user.GetFollowing(),
	}, nil
}
