package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := NewDefaultClientConfig()
	// httptest servers speak HTTP/1.1; forcing H2 just adds noise here.
	cfg.ForceHTTP2 = false
	cfg.Logger = zaptest.NewLogger(t)
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewSubmitter_Validation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)

	_, err := NewSubmitter(nil, "https://example.com/login", nil)
	assert.Error(t, err)

	_, err = NewSubmitter(client, "://not-a-url", nil)
	assert.Error(t, err)

	_, err = NewSubmitter(client, "ftp://example.com/login", nil)
	assert.Error(t, err)

	s, err := NewSubmitter(client, "https://example.com/login", nil)
	require.NoError(t, err)
	assert.Equal(t, "username", s.usernameField)
	assert.Equal(t, "password", s.passwordField)
}

func TestSubmit_PostsFormAndDigestsResponse(t *testing.T) {
	t.Parallel()

	const body = "<html>Invalid credentials. Please try again.</html>"

	var gotUser, gotPass, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotUser = r.PostFormValue("login_name")
		gotPass = r.PostFormValue("login_secret")
		gotContentType = r.Header.Get("Content-Type")

		http.SetCookie(w, &http.Cookie{Name: "csrf_token", Value: "abc"})
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	s, err := NewSubmitter(newTestClient(t), server.URL+"/login", zaptest.NewLogger(t),
		WithFormFields("login_name", "login_secret"))
	require.NoError(t, err)

	summary, err := s.Submit(context.Background(), "alice", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "hunter2", gotPass)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)

	assert.Equal(t, http.StatusUnprocessableEntity, summary.StatusCode)
	assert.Equal(t, len(body), summary.BodyLength)
	assert.Equal(t, server.URL+"/login", summary.FinalURL)
	assert.Contains(t, summary.CookieNames, "csrf_token")
	assert.Greater(t, summary.Elapsed.Nanoseconds(), int64(0))
}

func TestSubmit_FollowsRedirectsToFinalURL(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok", Path: "/"})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("welcome back"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewSubmitter(newTestClient(t), server.URL+"/login", zaptest.NewLogger(t))
	require.NoError(t, err)

	summary, err := s.Submit(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, summary.StatusCode)
	assert.Equal(t, server.URL+"/dashboard", summary.FinalURL)
	assert.Equal(t, len("welcome back"), summary.BodyLength)
	assert.Contains(t, summary.CookieNames, "session",
		"cookies set earlier in the redirect chain come from the jar")
}

func TestSubmit_TransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Shut down immediately: connection refused.

	s, err := NewSubmitter(newTestClient(t), server.URL+"/login", zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), "alice", "hunter2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login request failed")
}

func TestSubmit_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	s, err := NewSubmitter(newTestClient(t), server.URL+"/login", zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Submit(ctx, "alice", "hunter2")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context canceled") || strings.Contains(err.Error(), "login request failed"))
}

func TestClient_RedirectLoopBounded(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	s, err := NewSubmitter(newTestClient(t), server.URL+"/loop", zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirects")
}
