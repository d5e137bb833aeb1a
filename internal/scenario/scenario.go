// Package scenario implements the flows run against the authentication API:
// the signup/login/refresh end-to-end flow, the setup plus iteration
// load flow over profiles, and the admin docs smoke checks.
//
// Each flow exposes Setup and NewVU so the stresstest runner can drive
// it with any number of virtual users.
package scenario

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/executor"
	"github.com/studiowebux/authload/internal/fixture"
	"github.com/studiowebux/authload/internal/types"
)

// Request step names, used as the step label of stats and metrics
const (
	StepSetupSignup   = "setup_signup"
	StepSignup        = "signup"
	StepLogin         = "login"
	StepRefresh       = "refresh"
	StepProfile       = "profile"
	StepChangeEmail   = "change_email"
	StepDocsLoginPage = "docs_login_page"
	StepDocsLogin     = "docs_login"
	StepDocsIndex     = "docs_index"
)

// Deps are the collaborators shared by every flow
type Deps struct {
	Client   *executor.Client
	Checks   *check.Recorder
	Fixtures *fixture.Generator
	Logger   *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Fixtures == nil {
		d.Fixtures = fixture.New(nil)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Checks == nil {
		d.Checks = check.NewRecorder(d.Logger)
	}
	return d
}

// New returns the flow registered under name: "e2e", "load" or "docs"
func New(name string, deps Deps, adminKey string) (Flow, error) {
	switch name {
	case NameCredentials:
		return NewCredentialsFlow(deps), nil
	case NameProfile:
		return NewProfileFlow(deps), nil
	case NameDocs:
		return NewDocsFlow(deps, adminKey), nil
	}
	return nil, fmt.Errorf("unknown scenario %q", name)
}

// Flow is what the runner drives
type Flow interface {
	Name() string
	Setup(ctx context.Context) error
	NewVU(ctx context.Context, vu int) (func(ctx context.Context) error, error)
}

// statusDetail explains an unexpected status, including the API error
// message when the body carries one
func statusDetail(res *types.RequestResult, want ...int) string {
	if res.Failed() {
		return fmt.Sprintf("request failed: %s", res.Error)
	}
	detail := fmt.Sprintf("expected %v, got %d %s", want, res.Status, http.StatusText(res.Status))
	if env, err := res.Envelope(); err == nil && env.Error != nil {
		detail += ": " + env.Error.Error()
	}
	return detail
}

func statusIn(status int, want ...int) bool {
	for _, w := range want {
		if status == w {
			return true
		}
	}
	return false
}

// failAll records every named check of g as failed with err
func failAll(g *check.Group, err error, names ...string) {
	for _, name := range names {
		g.Check(name, false, err.Error())
	}
}
