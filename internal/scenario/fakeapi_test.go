package scenario

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studiowebux/authload/internal/check"
	"github.com/studiowebux/authload/internal/executor"
	"github.com/studiowebux/authload/internal/fixture"
	"github.com/studiowebux/authload/internal/types"
)

// fakeConfig controls how the fake answers
type fakeConfig struct {
	signupStatus   int
	signupUsername string // overrides the echoed username when set
	loginStatus    int
	refreshStatus  int
	profileStatus  int
	emailStatus    int
	adminKey       string
}

// fakeAPI is an in-process stand-in for the authentication service
type fakeAPI struct {
	t *testing.T

	mu        sync.Mutex
	cfg       fakeConfig
	users     map[string]string // username -> password
	calls     map[string]int
	tokenSeq  atomic.Int64
	lastAuth  string
	lastLogin types.LoginRequest
}

func newFakeAPI(t *testing.T) *fakeAPI {
	return &fakeAPI{
		t: t,
		cfg: fakeConfig{
			signupStatus:  http.StatusCreated,
			loginStatus:   http.StatusOK,
			refreshStatus: http.StatusOK,
			profileStatus: http.StatusOK,
			emailStatus:   http.StatusOK,
			adminKey:      "verystrongpassword",
		},
		users: make(map[string]string),
		calls: make(map[string]int),
	}
}

func (f *fakeAPI) configure(fn func(c *fakeConfig)) {
	f.mu.Lock()
	fn(&f.cfg)
	f.mu.Unlock()
}

func (f *fakeAPI) config() fakeConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeAPI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeAPI) lastLoginRequest() types.LoginRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLogin
}

func (f *fakeAPI) lastAuthorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAuth
}

func (f *fakeAPI) nextTokens() map[string]string {
	n := f.tokenSeq.Add(1)
	return map[string]string{
		"accessToken":  fmt.Sprintf("access-%d", n),
		"refreshToken": fmt.Sprintf("refresh-%d", n),
	}
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= 400 {
		json.NewEncoder(w).Encode(map[string]any{
			"apiVersion": "1.0",
			"error":      map[string]any{"code": status, "message": http.StatusText(status)},
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"apiVersion": "1.0", "status": "OK", "data": data})
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/credentials/signup", func(w http.ResponseWriter, r *http.Request) {
		cfg := f.config()
		var user types.SyntheticUser
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&user))
		if cfg.signupStatus != http.StatusCreated {
			writeEnvelope(w, cfg.signupStatus, nil)
			return
		}
		f.mu.Lock()
		f.users[user.Username] = user.Password
		f.mu.Unlock()

		data := f.nextTokens()
		data["username"] = user.Username
		if cfg.signupUsername != "" {
			data["username"] = cfg.signupUsername
		}
		writeEnvelope(w, http.StatusCreated, data)
	})

	mux.HandleFunc("/api/v1/credentials/login", func(w http.ResponseWriter, r *http.Request) {
		cfg := f.config()
		var req types.LoginRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.lastLogin = req
		password, known := f.users[req.Username]
		f.mu.Unlock()

		if cfg.loginStatus != http.StatusOK {
			writeEnvelope(w, cfg.loginStatus, nil)
			return
		}
		if !known || password != req.Password {
			writeEnvelope(w, http.StatusUnauthorized, nil)
			return
		}
		writeEnvelope(w, http.StatusOK, f.nextTokens())
	})

	mux.HandleFunc("/api/v1/credentials/refresh", func(w http.ResponseWriter, r *http.Request) {
		cfg := f.config()
		var req types.RefreshRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if cfg.refreshStatus != http.StatusOK || req.RefreshToken == "" {
			writeEnvelope(w, max(cfg.refreshStatus, http.StatusBadRequest), nil)
			return
		}
		writeEnvelope(w, http.StatusOK, f.nextTokens())
	})

	mux.HandleFunc("/api/v1/ptd/profiles/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.lastAuth = r.Header.Get("Authorization")
		var username string
		for u := range f.users {
			username = u
		}
		status := f.cfg.profileStatus
		f.mu.Unlock()
		writeEnvelope(w, status, map[string]any{"username": username, "emails": []any{}})
	})

	mux.HandleFunc("/api/v1/ptd/profiles/email", func(w http.ResponseWriter, r *http.Request) {
		cfg := f.config()
		var req types.ModifyEmailRequest
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Emails) != 2 || !req.Emails[0].IsPrimary || req.Emails[1].IsPrimary {
			writeEnvelope(w, http.StatusBadRequest, nil)
			return
		}
		writeEnvelope(w, cfg.emailStatus, req)
	})

	mux.HandleFunc("/api/v1/docs/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if r.FormValue("key") != f.config().adminKey {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "x-session-key", Value: "session", Path: "/"})
			http.Redirect(w, r, "/api/v1/docs/index.html", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><form></form></html>"))
	})

	mux.HandleFunc("/api/v1/docs/index.html", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("x-session-key"); err != nil {
			http.Redirect(w, r, "/api/v1/docs/unauthorized", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>docs</html>"))
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[strings.TrimPrefix(r.URL.Path, "/api/v1")]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

// start serves the fake and returns flow dependencies pointed at it
func (f *fakeAPI) start() Deps {
	server := httptest.NewServer(f.handler())
	f.t.Cleanup(server.Close)

	client, err := executor.NewClient(executor.Options{BaseURL: server.URL, MaxConns: 4})
	require.NoError(f.t, err)

	return Deps{
		Client:   client,
		Checks:   check.NewRecorder(zap.NewNop()),
		Fixtures: fixture.NewSeeded(1),
		Logger:   zap.NewNop(),
	}
}

func requireCounts(t *testing.T, rec *check.Recorder, group, name string, passes, fails int) {
	t.Helper()
	c, ok := rec.Lookup(group, name)
	require.True(t, ok, "%s / %s not recorded", group, name)
	require.Equal(t, passes, c.Passes, "%s / %s passes", group, name)
	require.Equal(t, fails, c.Fails, "%s / %s fails", group, name)
}
