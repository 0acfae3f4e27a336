package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(context.Context) (string, error) { return s.token, s.err }

func newTestGraphClient(srv *httptest.Server, tokens TokenSource) *GraphAPIClient {
	return NewGraphAPIClient(srv.URL+"/v21.0/", srv.URL, tokens, 5*time.Second, zap.NewNop())
}

func TestGraphAPIClient_Send(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v21.0/me/messages", r.URL.Path)
		auth = r.Header.Get("Authorization")
		got = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"recipient_id":"s-1","message_id":"m-1"}`))
	}))
	defer srv.Close()
	client := newTestGraphClient(srv, staticTokens{token: "tok"})

	require.NoError(t, client.Send(context.Background(), "s-1", domain.TextReply("hello")))
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, map[string]any{"id": "s-1"}, got["recipient"])
	assert.Equal(t, map[string]any{"text": "hello"}, got["message"])

	require.NoError(t, client.Send(context.Background(), "s-1", domain.ButtonReply("pick one", "https://dash", "Open dashboard")))
	message := got["message"].(map[string]any)
	attachment := message["attachment"].(map[string]any)
	assert.Equal(t, "template", attachment["type"])
	payload := attachment["payload"].(map[string]any)
	assert.Equal(t, "button", payload["template_type"])
	assert.Equal(t, "pick one", payload["text"])
	assert.Equal(t, []any{map[string]any{"type": "web_url", "url": "https://dash", "title": "Open dashboard"}}, payload["buttons"])
	_, hasText := message["text"]
	assert.False(t, hasText)
}

func TestGraphAPIClient_SendErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	}))
	defer srv.Close()

	err := newTestGraphClient(srv, staticTokens{token: "bad"}).Send(context.Background(), "s-1", domain.TextReply("x"))
	var apiErr *GraphAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 190, apiErr.Code)
	assert.Equal(t, "OAuthException", apiErr.Type)
}

func TestGraphAPIClient_UsernameUsesFallbackToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/17841400000", r.URL.Path)
		assert.Equal(t, "username,name,id", r.URL.Query().Get("fields"))
		assert.Equal(t, "configured", r.URL.Query().Get("access_token"))
		w.Write([]byte(`{"id":"17841400000","username":"Ana.Clips","name":"Ana"}`))
	}))
	defer srv.Close()

	client := newTestGraphClient(srv, staticTokens{token: "configured", err: errors.New("redis down")})
	username, err := client.Username(context.Background(), "17841400000")
	require.NoError(t, err)
	assert.Equal(t, "Ana.Clips", username)
}

func TestGraphAPIClient_UsernameHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewGraphAPIClient(srv.URL+"/v21.0/", srv.URL, staticTokens{token: "t"}, 50*time.Millisecond, zap.NewNop())
	start := time.Now()
	_, err := client.Username(context.Background(), "17841400000")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGraphAPIClient_ReelFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/me/media":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "REELS", r.PostForm.Get("media_type"))
			assert.Equal(t, "https://cdn/outputs/j-1", r.PostForm.Get("video_url"))
			assert.Equal(t, "caption", r.PostForm.Get("caption"))
			assert.Equal(t, "user-token", r.PostForm.Get("access_token"))
			w.Write([]byte(`{"id":"c-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v21.0/c-1":
			assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
			w.Write([]byte(`{"status_code":"FINISHED","id":"c-1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/me/media_publish":
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "c-1", r.PostForm.Get("creation_id"))
			w.Write([]byte(`{"id":"media-9"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	client := newTestGraphClient(srv, staticTokens{token: "page"})
	ctx := context.Background()

	container, err := client.CreateReelContainer(ctx, "user-token", "https://cdn/outputs/j-1", "caption")
	require.NoError(t, err)
	assert.Equal(t, "c-1", container)

	status, err := client.ContainerStatus(ctx, "user-token", container)
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", status)

	mediaID, err := client.PublishContainer(ctx, "user-token", container)
	require.NoError(t, err)
	assert.Equal(t, "media-9", mediaID)
}

func TestGraphAPIClient_RefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/refresh_access_token", r.URL.Path)
		assert.Equal(t, "ig_refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "old", r.URL.Query().Get("access_token"))
		io.WriteString(w, `{"access_token":"new","token_type":"bearer","expires_in":5184000}`)
	}))
	defer srv.Close()

	refreshed, err := newTestGraphClient(srv, staticTokens{token: "old"}).RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", refreshed.AccessToken)
	assert.Equal(t, 60*24*time.Hour, refreshed.ExpiresIn)
}

type recordingSink struct {
	token string
	ttl   time.Duration
}

func (r *recordingSink) SetToken(_ context.Context, token string, ttl time.Duration) error {
	r.token, r.ttl = token, ttl
	return nil
}

type stubRefreshAPI struct {
	out RefreshedToken
	err error
}

func (s stubRefreshAPI) RefreshToken(context.Context) (RefreshedToken, error) { return s.out, s.err }

func TestTokenRefresher_RefreshOnce(t *testing.T) {
	sink := &recordingSink{}
	r := NewTokenRefresher(stubRefreshAPI{out: RefreshedToken{AccessToken: "fresh", ExpiresIn: time.Hour}}, sink, zap.NewNop())
	require.NoError(t, r.RefreshOnce(context.Background()))
	assert.Equal(t, "fresh", sink.token)
	assert.Equal(t, time.Hour, sink.ttl)

	sink = &recordingSink{}
	r = NewTokenRefresher(stubRefreshAPI{err: errors.New("expired")}, sink, zap.NewNop())
	assert.Error(t, r.RefreshOnce(context.Background()))
	assert.Empty(t, sink.token)
}

func TestTokenRefresher_RejectsBadSpec(t *testing.T) {
	r := NewTokenRefresher(stubRefreshAPI{}, &recordingSink{}, zap.NewNop())
	assert.Error(t, r.Start("not a cron spec"))
	r.Stop()
}
