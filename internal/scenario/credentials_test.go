package scenario

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsFlow_HappyPath(t *testing.T) {
	api := newFakeAPI(t)
	deps := api.start()

	state, err := NewCredentialsFlow(deps).Run(context.Background())
	require.NoError(t, err)

	creds, err := state.Credentials()
	require.NoError(t, err)
	assert.Len(t, creds.Username, 20)
	assert.Equal(t, "verystrongpassword", creds.Password)

	tokens, err := state.Tokens()
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	// signup issues pair 1, login pair 2, refresh pair 3
	assert.Equal(t, "access-3", tokens.AccessToken)

	passes, fails := deps.Checks.Totals()
	assert.Equal(t, 9, passes)
	assert.Equal(t, 0, fails)
	assert.Equal(t, 1.0, deps.Checks.Rate())

	login := api.lastLoginRequest()
	assert.Equal(t, creds.Username, login.Username)
	assert.Equal(t, creds.Password, login.Password)
}

func TestCredentialsFlow_SignupFailureFailsLaterSteps(t *testing.T) {
	api := newFakeAPI(t)
	api.configure(func(c *fakeConfig) { c.signupStatus = http.StatusInternalServerError })
	deps := api.start()

	state, err := NewCredentialsFlow(deps).Run(context.Background())
	require.NoError(t, err)

	_, err = state.Credentials()
	assert.True(t, errors.Is(err, ErrStateNotSet))
	_, err = state.Tokens()
	assert.True(t, errors.Is(err, ErrStateNotSet))

	requireCounts(t, deps.Checks, GroupSignup, CheckStatus201, 0, 1)
	for _, name := range tokenChecks {
		requireCounts(t, deps.Checks, GroupLogin, name, 0, 1)
		requireCounts(t, deps.Checks, GroupRefresh, name, 0, 1)
	}

	// steps without input never reach the server
	assert.Equal(t, 1, api.count("/credentials/signup"))
	assert.Equal(t, 0, api.count("/credentials/login"))
	assert.Equal(t, 0, api.count("/credentials/refresh"))
}

func TestCredentialsFlow_UsernameMismatch(t *testing.T) {
	api := newFakeAPI(t)
	api.configure(func(c *fakeConfig) { c.signupUsername = "u2" })
	deps := api.start()

	state, err := NewCredentialsFlow(deps).Run(context.Background())
	require.NoError(t, err)

	requireCounts(t, deps.Checks, GroupSignup, CheckStatus201, 1, 0)
	requireCounts(t, deps.Checks, GroupSignup, CheckStatusOK, 1, 0)
	requireCounts(t, deps.Checks, GroupSignup, CheckUsername, 0, 1)

	_, err = state.Credentials()
	assert.ErrorIs(t, err, ErrStateNotSet)
}

func TestCredentialsFlow_RefreshRejected(t *testing.T) {
	api := newFakeAPI(t)
	api.configure(func(c *fakeConfig) { c.refreshStatus = http.StatusUnauthorized })
	deps := api.start()

	state, err := NewCredentialsFlow(deps).Run(context.Background())
	require.NoError(t, err)

	requireCounts(t, deps.Checks, GroupLogin, CheckStatus200, 1, 0)
	requireCounts(t, deps.Checks, GroupRefresh, CheckStatus200, 0, 1)

	// tokens from login survive a failed refresh
	tokens, err := state.Tokens()
	require.NoError(t, err)
	assert.Equal(t, "access-2", tokens.AccessToken)
}

func TestCredentialsFlow_LoginRejected(t *testing.T) {
	api := newFakeAPI(t)
	api.configure(func(c *fakeConfig) { c.loginStatus = http.StatusUnauthorized })
	deps := api.start()

	_, err := NewCredentialsFlow(deps).Run(context.Background())
	require.NoError(t, err)

	requireCounts(t, deps.Checks, GroupLogin, CheckStatus200, 0, 1)
	requireCounts(t, deps.Checks, GroupLogin, CheckAccessToken, 0, 1)
	requireCounts(t, deps.Checks, GroupRefresh, CheckStatus200, 0, 1)
	assert.Equal(t, 0, api.count("/credentials/refresh"))
}

func TestCredentialsFlow_CancelledContext(t *testing.T) {
	api := newFakeAPI(t)
	deps := api.start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCredentialsFlow(deps).Run(ctx)
	require.NoError(t, err)

	passes, fails := deps.Checks.Totals()
	assert.Equal(t, 0, passes)
	assert.Equal(t, 9, fails)
}

func TestCredentialsFlow_NewVUFreshState(t *testing.T) {
	api := newFakeAPI(t)
	deps := api.start()
	flow := NewCredentialsFlow(deps)

	require.NoError(t, flow.Setup(context.Background()))
	iterate, err := flow.NewVU(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, iterate(context.Background()))
	require.NoError(t, iterate(context.Background()))

	assert.Equal(t, 2, api.count("/credentials/signup"))
	requireCounts(t, deps.Checks, GroupRefresh, CheckStatus200, 2, 0)
}
