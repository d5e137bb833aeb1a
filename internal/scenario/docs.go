package scenario

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/studiowebux/authload/internal/executor"
)

// NameDocs is the registry name of the admin docs smoke checks
const NameDocs = "docs"

// Groups and checks of the docs flow
const (
	GroupDocsLoginPage = "01. Login Page"
	GroupDocsLogin     = "02. Post admin secret"
	GroupDocsIndex     = "03. Accessing index.html"

	CheckContentTypeHTML = "Content type must be HTML"
)

// DocsFlow checks the admin docs pages. The groups share nothing but the
// virtual user's cookie jar.
type DocsFlow struct {
	deps     Deps
	adminKey string
}

// NewDocsFlow creates the flow posting adminKey to the docs login form
func NewDocsFlow(deps Deps, adminKey string) *DocsFlow {
	return &DocsFlow{deps: deps.withDefaults(), adminKey: adminKey}
}

// Name returns the registry name
func (f *DocsFlow) Name() string {
	return NameDocs
}

// Setup has nothing to prepare
func (f *DocsFlow) Setup(ctx context.Context) error {
	return nil
}

// NewVU opens a cookie session for the virtual user
func (f *DocsFlow) NewVU(ctx context.Context, vu int) (func(ctx context.Context) error, error) {
	session, err := f.deps.Client.Session()
	if err != nil {
		return nil, fmt.Errorf("vu %d: %w", vu, err)
	}
	return func(ctx context.Context) error {
		return f.Run(ctx, session)
	}, nil
}

// Run executes the three groups with client
func (f *DocsFlow) Run(ctx context.Context, client *executor.Client) error {
	if err := f.LoginPage(ctx, client); err != nil {
		return err
	}
	if err := f.PostSecret(ctx, client); err != nil {
		return err
	}
	return f.Index(ctx, client)
}

// LoginPage expects the HTML login form
func (f *DocsFlow) LoginPage(ctx context.Context, client *executor.Client) error {
	g := f.deps.Checks.Group(ctx, GroupDocsLoginPage)

	res, err := client.DocsLoginPage(ctx, StepDocsLoginPage)
	if err != nil {
		return fmt.Errorf("docs login page: %w", err)
	}

	g.Check(CheckStatusMust200, res.Status == http.StatusOK, statusDetail(res, http.StatusOK))

	contentType := res.Headers["Content-Type"]
	g.Check(CheckContentTypeHTML, strings.Contains(contentType, "text/html"),
		fmt.Sprintf("got Content-Type %q", contentType))
	return nil
}

// PostSecret submits the admin key; the redirect to the index is followed
func (f *DocsFlow) PostSecret(ctx context.Context, client *executor.Client) error {
	g := f.deps.Checks.Group(ctx, GroupDocsLogin)

	res, err := client.DocsLogin(ctx, StepDocsLogin, f.adminKey)
	if err != nil {
		return fmt.Errorf("docs login: %w", err)
	}

	g.Check(CheckStatusMust200, res.Status == http.StatusOK, statusDetail(res, http.StatusOK))
	return nil
}

// Index fetches the docs index page
func (f *DocsFlow) Index(ctx context.Context, client *executor.Client) error {
	g := f.deps.Checks.Group(ctx, GroupDocsIndex)

	res, err := client.DocsIndex(ctx, StepDocsIndex)
	if err != nil {
		return fmt.Errorf("docs index: %w", err)
	}

	g.Check(CheckStatusMust200, res.Status == http.StatusOK, statusDetail(res, http.StatusOK))
	return nil
}
