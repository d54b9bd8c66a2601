package poller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/ratelimit"
	"likesync/pkg/retry"
	"likesync/pkg/storage"
	"likesync/pkg/twitter"
)

// mockXServer simulates the X API v2 endpoints and the media CDN
type mockXServer struct {
	server       *httptest.Server
	token        string
	users        []twitter.User
	liked        map[string]twitter.LikedTweetsResponse
	requestCount int32

	mu       sync.Mutex
	requests []string
}

func newMockXServer(t *testing.T, token string, users ...twitter.User) *mockXServer {
	t.Helper()
	m := &mockXServer{
		token: token,
		users: users,
		liked: make(map[string]twitter.LikedTweetsResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/2/users/by", m.authenticated(m.handleUsersByUsername))
	mux.HandleFunc("/2/users", m.authenticated(m.handleUsersByID))
	mux.HandleFunc("/2/users/", m.authenticated(m.handleLikedTweets))
	mux.HandleFunc("/media/", m.handleMedia)

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockXServer) mediaURL(key string) string {
	return m.server.URL + "/media/" + key + ".jpg"
}

func (m *mockXServer) log(r *http.Request) {
	atomic.AddInt32(&m.requestCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, r.URL.Path)
}

func (m *mockXServer) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

func (m *mockXServer) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.log(r)
		if r.Header.Get("Authorization") != "Bearer "+m.token {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"title":  "Unauthorized",
				"status": 401,
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		next(w, r)
	}
}

func (m *mockXServer) handleUsersByUsername(w http.ResponseWriter, r *http.Request) {
	var resp twitter.UsersResponse
	for _, name := range strings.Split(r.URL.Query().Get("usernames"), ",") {
		for _, u := range m.users {
			if strings.EqualFold(u.Username, name) {
				resp.Data = append(resp.Data, u)
			}
		}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *mockXServer) handleUsersByID(w http.ResponseWriter, r *http.Request) {
	var resp twitter.UsersResponse
	for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
		for _, u := range m.users {
			if u.ID == id {
				resp.Data = append(resp.Data, u)
			}
		}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *mockXServer) handleLikedTweets(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/2/users/"), "/")
	if len(parts) != 2 || parts[1] != "liked_tweets" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.URL.Query().Get("expansions") != "attachments.media_keys" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(m.liked[parts[0]])
}

func (m *mockXServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	m.log(r)
	if r.Header.Get("Authorization") != "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write([]byte("jpeg:" + r.URL.Path))
}

func newIntegrationPoller(t *testing.T, m *mockXServer, token string, usernames ...string) (*Poller, *storage.Manager) {
	t.Helper()
	log := logger.NewTestLogger()

	client := twitter.NewClient(token, 5*time.Second, log)
	client.SetBaseURL(m.server.URL + "/2")
	client.SetLimiter(ratelimit.Unlimited{})
	client.SetRetryConfig(&retry.Config{
		MaxAttempts: 2,
		Backoff:     retry.Constant(time.Millisecond),
		RetryIf:     retry.DefaultRetryIf,
	})

	store, err := storage.NewManager(t.TempDir(), false)
	require.NoError(t, err)

	return New(client, store, Options{
		Usernames:           usernames,
		PollInterval:        10 * time.Millisecond,
		ConcurrentDownloads: 3,
		DownloadTimeout:     time.Second,
	}, log), store
}

func TestEndToEndCycle(t *testing.T) {
	m := newMockXServer(t, "good-token", tracker, artist, painter)
	m.liked[tracker.ID] = twitter.LikedTweetsResponse{
		Data: []twitter.Tweet{
			post("1585497795418820609", artist.ID, "k1", "k2"),
			post("7", painter.ID, "k3"),
		},
		Includes: twitter.Includes{Media: []twitter.Media{
			{MediaKey: "k1", Type: "photo", URL: m.mediaURL("k1")},
			{MediaKey: "k2", Type: "photo", URL: m.mediaURL("k2")},
			{MediaKey: "k3", Type: "video"},
		}},
	}

	p, store := newIntegrationPoller(t, m, "good-token", "@tracker")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, []string{
		"2022-10-27.ねばえばぎぶあぷ.@N_ever2_give_up.1585497795418820609.0.jpg",
		"2022-10-27.ねばえばぎぶあぷ.@N_ever2_give_up.1585497795418820609.1.jpg",
	}, listDir(t, store.GetOutputDir()), "media without a URL is skipped")

	assert.Equal(t, []string{
		"/2/users/by",
		"/2/users/100/liked_tweets",
		"/2/users",
	}, m.paths()[:3], "tracked users, then likes, then one author lookup")

	before := atomic.LoadInt32(&m.requestCount)
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, before+1, atomic.LoadInt32(&m.requestCount), "second cycle only refetches likes")
}

func TestEndToEndRejectedToken(t *testing.T) {
	m := newMockXServer(t, "good-token", tracker)

	p, store := newIntegrationPoller(t, m, "revoked-token", "tracker")
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&m.requestCount), "401 is not retried")
	assert.Empty(t, listDir(t, store.GetOutputDir()))
}
