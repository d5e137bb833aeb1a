package scenario

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/chain"
	"github.com/studiowebux/authload/internal/fixture"
	"github.com/studiowebux/authload/internal/types"
)

// NameProfile is the registry name of the setup plus iteration flow
const NameProfile = "load"

// Groups and checks of the profile flow
const (
	GroupSetup       = "setup"
	GroupLoginLoad   = "01. Login"
	GroupProfile     = "02. Profile Management"
	GroupChangeEmail = "03. Change email"

	CheckSetupStatus     = "Status code must be 201"
	CheckStatusMust200   = "Status code must be 200"
	CheckCorrectUsername = "Correct username"
)

// VUContext is the signed-up user a virtual user iterates with.
// Login rotates the tokens in place.
type VUContext struct {
	User         types.SyntheticUser
	AccessToken  string
	RefreshToken string
}

// ProfileFlow signs up one user during setup, then every iteration logs
// in, reads the profile and replaces the email list
type ProfileFlow struct {
	deps Deps

	mu     sync.RWMutex
	shared *VUContext
}

// NewProfileFlow creates the flow
func NewProfileFlow(deps Deps) *ProfileFlow {
	return &ProfileFlow{deps: deps.withDefaults()}
}

// Name returns the registry name
func (f *ProfileFlow) Name() string {
	return NameProfile
}

// Setup signs up the load user. Any failure wraps ErrSetupFailed.
func (f *ProfileFlow) Setup(ctx context.Context) error {
	vu, err := f.SetupVU(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.shared = vu
	f.mu.Unlock()
	return nil
}

// SetupVU signs up a fresh load user and returns its context
func (f *ProfileFlow) SetupVU(ctx context.Context) (*VUContext, error) {
	g := f.deps.Checks.Group(ctx, GroupSetup)
	user := f.deps.Fixtures.GenerateNewUser(fixture.Load)

	res, err := f.deps.Client.Signup(ctx, StepSetupSignup, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSetupFailed, err)
	}

	if !g.Check(CheckSetupStatus, res.Status == http.StatusCreated, statusDetail(res, http.StatusCreated)) {
		f.deps.Logger.Error("signup during setup was not successful",
			zap.Int("status", res.Status),
			zap.String("error", res.Error),
		)
		return nil, fmt.Errorf("%w: signup returned status %d", ErrSetupFailed, res.Status)
	}

	pair, err := chain.Tokens(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: signup response: %v", ErrSetupFailed, err)
	}

	return &VUContext{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// NewVU gives the virtual user its own copy of the setup context
func (f *ProfileFlow) NewVU(ctx context.Context, vu int) (func(ctx context.Context) error, error) {
	f.mu.RLock()
	shared := f.shared
	f.mu.RUnlock()

	if shared == nil {
		return nil, fmt.Errorf("%w: setup has not run", ErrSetupFailed)
	}

	own := *shared
	return func(ctx context.Context) error {
		return f.Iteration(ctx, &own)
	}, nil
}

// Iteration runs login, profile and change email for vu
func (f *ProfileFlow) Iteration(ctx context.Context, vu *VUContext) error {
	if err := f.Login(ctx, vu); err != nil {
		return err
	}
	if err := f.Profile(ctx, vu); err != nil {
		return err
	}
	return f.ChangeEmail(ctx, vu)
}

// Login accepts 200 and 429. Only a 200 rotates the tokens; a rate
// limited login keeps the previous ones.
func (f *ProfileFlow) Login(ctx context.Context, vu *VUContext) error {
	g := f.deps.Checks.Group(ctx, GroupLoginLoad)

	res, err := f.deps.Client.Login(ctx, StepLogin, vu.User.Username, vu.User.Password, http.StatusTooManyRequests)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	g.Check(CheckStatusMust200, statusIn(res.Status, http.StatusOK, http.StatusTooManyRequests),
		statusDetail(res, http.StatusOK, http.StatusTooManyRequests))

	if res.Status != http.StatusOK {
		return nil
	}

	pair, err := chain.Tokens(res.Body)
	if err != nil || pair.AccessToken == "" {
		f.deps.Logger.Warn("login response carried no tokens", zap.Error(err))
		return nil
	}
	vu.AccessToken = pair.AccessToken
	vu.RefreshToken = pair.RefreshToken
	return nil
}

// Profile reads the caller's own profile
func (f *ProfileFlow) Profile(ctx context.Context, vu *VUContext) error {
	g := f.deps.Checks.Group(ctx, GroupProfile)

	res, err := f.deps.Client.GetProfile(ctx, StepProfile, vu.AccessToken)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	g.Check(CheckStatusMust200, res.Status == http.StatusOK, statusDetail(res, http.StatusOK))

	username, _, _ := chain.Lookup(res.Body, chain.PathUsername)
	g.Check(CheckCorrectUsername, res.Status == http.StatusOK && username == vu.User.Username,
		fmt.Sprintf("expected username %q, got %q", vu.User.Username, username))
	return nil
}

// ChangeEmail replaces the email list with a fresh primary and secondary address
func (f *ProfileFlow) ChangeEmail(ctx context.Context, vu *VUContext) error {
	g := f.deps.Checks.Group(ctx, GroupChangeEmail)

	emails := []types.EmailDetail{
		{Email: f.deps.Fixtures.Email(), IsPrimary: true},
		{Email: f.deps.Fixtures.Email(), IsPrimary: false},
	}

	res, err := f.deps.Client.ChangeEmails(ctx, StepChangeEmail, vu.AccessToken, emails)
	if err != nil {
		return fmt.Errorf("change email: %w", err)
	}

	g.Check(CheckStatusMust200, res.Status == http.StatusOK, statusDetail(res, http.StatusOK))
	return nil
}
