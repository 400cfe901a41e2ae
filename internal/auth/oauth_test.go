package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the /user API.
func fakeGitHub(t *testing.T, userStatus int, user GitHubUser) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "gh-token",
			"token_type":   "bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(userStatus)
		json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *GitHubProvider {
	return newGitHubProvider("client-id", "client-secret", "http://localhost/auth/github/callback",
		oauth2.Endpoint{
			AuthURL:  srv.URL + "/login/oauth/authorize",
			TokenURL: srv.URL + "/login/oauth/access_token",
		},
		srv.URL,
	)
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:8080/auth/github/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "state-123", u.Query().Get("state"))
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
}

func TestGitHubProvider_Exchange(t *testing.T) {
	srv := fakeGitHub(t, http.StatusOK, GitHubUser{ID: 99, Login: "octocat", Email: "octo@example.com"})

	user, err := testProvider(srv).Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, int64(99), user.ID)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, "octo@example.com", user.Email)
}

func TestGitHubProvider_ExchangeFailures(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := fakeGitHub(t, http.StatusInternalServerError, GitHubUser{})
		_, err := testProvider(srv).Exchange(context.Background(), "code")
		assert.Error(t, err)
	})

	t.Run("zero id", func(t *testing.T) {
		srv := fakeGitHub(t, http.StatusOK, GitHubUser{Login: "nobody"})
		_, err := testProvider(srv).Exchange(context.Background(), "code")
		assert.Error(t, err)
	})
}
