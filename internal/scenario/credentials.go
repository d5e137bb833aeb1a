package scenario

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/chain"
	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/fixture"
)

// NameCredentials is the registry name of the signup/login/refresh flow
const NameCredentials = "e2e"

// Groups and checks of the credentials flow
const (
	GroupSignup  = "I am able to signup as new user"
	GroupLogin   = "I am able to login after signing up"
	GroupRefresh = "I am able to refresh my access using refresh token"

	CheckStatus201    = "status code should be 201"
	CheckStatusOK     = "status should be OK"
	CheckUsername     = "username should match"
	CheckStatus200    = "status code should be 200"
	CheckAccessToken  = "access token should not be empty"
	CheckRefreshToken = "refresh token should not be empty"
)

var tokenChecks = []string{CheckStatus200, CheckAccessToken, CheckRefreshToken}

// CredentialsFlow signs up a fresh user, logs in and refreshes the tokens.
// Steps always run in order; a step whose input was never stored fails
// its checks without sending a request.
type CredentialsFlow struct {
	deps Deps
}

// NewCredentialsFlow creates the flow
func NewCredentialsFlow(deps Deps) *CredentialsFlow {
	return &CredentialsFlow{deps: deps.withDefaults()}
}

// Name returns the registry name
func (f *CredentialsFlow) Name() string {
	return NameCredentials
}

// Setup has nothing to prepare
func (f *CredentialsFlow) Setup(ctx context.Context) error {
	return nil
}

// NewVU returns an iteration that runs the whole flow on fresh state
func (f *CredentialsFlow) NewVU(ctx context.Context, vu int) (func(ctx context.Context) error, error) {
	return func(ctx context.Context) error {
		_, err := f.Run(ctx)
		return err
	}, nil
}

// Run executes signup, login and refresh and returns the final state
func (f *CredentialsFlow) Run(ctx context.Context) (*State, error) {
	state := &State{}
	if err := f.Signup(ctx, state); err != nil {
		return state, err
	}
	if err := f.Login(ctx, state); err != nil {
		return state, err
	}
	if err := f.Refresh(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// Signup registers a new e2e user and stores its credentials when every
// check passed
func (f *CredentialsFlow) Signup(ctx context.Context, state *State) error {
	g := f.deps.Checks.Group(ctx, GroupSignup)
	user := f.deps.Fixtures.GenerateNewUser(fixture.E2E)

	res, err := f.deps.Client.Signup(ctx, StepSignup, user)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}

	g.Check(CheckStatus201, res.Status == http.StatusCreated, statusDetail(res, http.StatusCreated))

	status, _, _ := chain.Lookup(res.Body, chain.PathStatus)
	g.Check(CheckStatusOK, status == "OK", fmt.Sprintf("expected status OK, got %q", status))

	username, _, _ := chain.Lookup(res.Body, chain.PathUsername)
	g.Check(CheckUsername, username == user.Username,
		fmt.Sprintf("expected username %q, got %q", user.Username, username))

	if g.OK() {
		state.SetCredentials(Credentials{Username: user.Username, Password: user.Password})
	}
	return nil
}

// Login exchanges the stored credentials for tokens
func (f *CredentialsFlow) Login(ctx context.Context, state *State) error {
	g := f.deps.Checks.Group(ctx, GroupLogin)

	creds, err := state.Credentials()
	if err != nil {
		failAll(g, err, tokenChecks...)
		return nil
	}

	res, err := f.deps.Client.Login(ctx, StepLogin, creds.Username, creds.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	f.storeTokens(g, state, res.Status == http.StatusOK, statusDetail(res, http.StatusOK), res.Body)
	return nil
}

// Refresh exchanges the stored refresh token for a new pair
func (f *CredentialsFlow) Refresh(ctx context.Context, state *State) error {
	g := f.deps.Checks.Group(ctx, GroupRefresh)

	tokens, err := state.Tokens()
	if err != nil {
		failAll(g, err, tokenChecks...)
		return nil
	}

	res, err := f.deps.Client.Refresh(ctx, StepRefresh, tokens.RefreshToken)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	f.storeTokens(g, state, res.Status == http.StatusOK, statusDetail(res, http.StatusOK), res.Body)
	return nil
}

func (f *CredentialsFlow) storeTokens(g *check.Group, state *State, statusOK bool, detail, body string) {
	g.Check(CheckStatus200, statusOK, detail)

	pair, err := chain.Tokens(body)
	if err != nil {
		f.deps.Logger.Debug("token extraction failed", zap.String("group", g.Name()), zap.Error(err))
	}
	g.Check(CheckAccessToken, pair.AccessToken != "", "data.accessToken is empty")
	g.Check(CheckRefreshToken, pair.RefreshToken != "", "data.refreshToken is empty")

	if g.OK() {
		state.SetTokens(Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	}
}
