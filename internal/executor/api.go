package executor

import (
	"context"
	"net/http"
	"net/url"

	"github.com/studiowebux/authload/internal/types"
)

// Endpoint paths, relative to the API prefix
const (
	PathSignup       = "/credentials/signup"
	PathLogin        = "/credentials/login"
	PathRefresh      = "/credentials/refresh"
	PathProfileMe    = "/ptd/profiles/me"
	PathProfileEmail = "/ptd/profiles/email"
	PathDocsLogin    = "/docs/login"
	PathDocsIndex    = "/docs/index.html"
)

// Signup registers user
func (c *Client) Signup(ctx context.Context, step string, user types.SyntheticUser) (*types.RequestResult, error) {
	return c.Do(ctx, Call{Step: step, Method: http.MethodPost, Path: PathSignup, JSON: user})
}

// Login exchanges a username and password for a token pair.
// Statuses in allow are not counted as failed requests.
func (c *Client) Login(ctx context.Context, step, username, password string, allow ...int) (*types.RequestResult, error) {
	return c.Do(ctx, Call{
		Step:   step,
		Method: http.MethodPost,
		Path:   PathLogin,
		JSON:   types.LoginRequest{Username: username, Password: password},
		Allow:  allow,
	})
}

// Refresh exchanges a refresh token for a new token pair
func (c *Client) Refresh(ctx context.Context, step, refreshToken string) (*types.RequestResult, error) {
	return c.Do(ctx, Call{
		Step:   step,
		Method: http.MethodPost,
		Path:   PathRefresh,
		JSON:   types.RefreshRequest{RefreshToken: refreshToken},
	})
}

// GetProfile fetches the caller's own profile
func (c *Client) GetProfile(ctx context.Context, step, accessToken string) (*types.RequestResult, error) {
	return c.Do(ctx, Call{Step: step, Method: http.MethodGet, Path: PathProfileMe, Token: accessToken})
}

// ChangeEmails replaces the caller's email list
func (c *Client) ChangeEmails(ctx context.Context, step, accessToken string, emails []types.EmailDetail) (*types.RequestResult, error) {
	return c.Do(ctx, Call{
		Step:   step,
		Method: http.MethodPut,
		Path:   PathProfileEmail,
		JSON:   types.ModifyEmailRequest{Emails: emails},
		Token:  accessToken,
	})
}

// DocsLoginPage fetches the admin docs login form
func (c *Client) DocsLoginPage(ctx context.Context, step string) (*types.RequestResult, error) {
	return c.Do(ctx, Call{Step: step, Method: http.MethodGet, Path: PathDocsLogin})
}

// DocsLogin posts the admin key as a form. Redirects are followed, so
// the result is the page the server sends the browser to.
func (c *Client) DocsLogin(ctx context.Context, step, adminKey string) (*types.RequestResult, error) {
	return c.Do(ctx, Call{
		Step:   step,
		Method: http.MethodPost,
		Path:   PathDocsLogin,
		Form:   url.Values{"key": {adminKey}},
	})
}

// DocsIndex fetches the admin docs index page
func (c *Client) DocsIndex(ctx context.Context, step string) (*types.RequestResult, error) {
	return c.Do(ctx, Call{Step: step, Method: http.MethodGet, Path: PathDocsIndex})
}
