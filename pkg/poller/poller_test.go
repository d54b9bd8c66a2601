package poller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "likesync/pkg/errors"
	"likesync/pkg/logger"
	"likesync/pkg/metadata"
	"likesync/pkg/storage"
	"likesync/pkg/twitter"
)

// fakeAPI serves a fixed directory of users, liked pages and media
type fakeAPI struct {
	mu        sync.Mutex
	users     map[string]twitter.User
	likes     map[string]*twitter.LikedTweetsResponse
	likeErrs  map[string]error
	lookupErr error
	mediaErrs map[string]error

	calls      []string
	idLookups  [][]string
	downloaded []string
}

func newFakeAPI(users ...twitter.User) *fakeAPI {
	f := &fakeAPI{
		users:     make(map[string]twitter.User),
		likes:     make(map[string]*twitter.LikedTweetsResponse),
		likeErrs:  make(map[string]error),
		mediaErrs: make(map[string]error),
	}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) FetchUsersByUsernames(ctx context.Context, usernames []string) ([]twitter.User, error) {
	f.record("usernames")
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var out []twitter.User
	for _, name := range usernames {
		for _, u := range f.users {
			if strings.EqualFold(u.Username, name) {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeAPI) FetchUsersByIDs(ctx context.Context, ids []string) ([]twitter.User, error) {
	f.record("ids")
	f.mu.Lock()
	f.idLookups = append(f.idLookups, append([]string(nil), ids...))
	f.mu.Unlock()

	var out []twitter.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeAPI) FetchLikedPosts(ctx context.Context, userID string) (*twitter.LikedPage, error) {
	f.record("likes:" + userID)
	if err := f.likeErrs[userID]; err != nil {
		return nil, err
	}
	resp, ok := f.likes[userID]
	if !ok {
		return &twitter.LikedPage{}, nil
	}
	return twitter.NewLikedPage(resp), nil
}

func (f *fakeAPI) DownloadMedia(ctx context.Context, url string) ([]byte, error) {
	f.record("media")
	if err := f.mediaErrs[url]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.downloaded = append(f.downloaded, url)
	f.mu.Unlock()
	return []byte("bytes of " + url), nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.downloaded)
}

var (
	tracker = twitter.User{ID: "100", Username: "tracker", Name: "Tracker"}
	second  = twitter.User{ID: "200", Username: "second", Name: "Second"}
	artist  = twitter.User{ID: "1", Username: "N_ever2_give_up", Name: "ねばえばぎぶあぷ"}
	painter = twitter.User{ID: "2", Username: "painter", Name: "A.B/C"}
)

func photo(key string) twitter.Media {
	return twitter.Media{MediaKey: key, Type: "photo", URL: "https://pbs.twimg.com/media/" + key + ".jpg"}
}

func post(id, authorID string, keys ...string) twitter.Tweet {
	t := twitter.Tweet{ID: id, AuthorID: authorID, CreatedAt: "2022-10-27T05:05:06.000Z"}
	if len(keys) > 0 {
		t.Attachments = &twitter.Attachments{MediaKeys: keys}
	}
	return t
}

func newPoller(t *testing.T, api *fakeAPI, usernames ...string) (*Poller, *storage.Manager, *logger.TestLogger) {
	t.Helper()
	store, err := storage.NewManager(t.TempDir(), false)
	require.NoError(t, err)
	log := logger.NewTestLogger()
	p := New(api, store, Options{
		Usernames:           usernames,
		PollInterval:        10 * time.Millisecond,
		ConcurrentDownloads: 2,
		DownloadTimeout:     time.Second,
	}, log)
	return p, store, log
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRunOnceDownloadsLikedMedia(t *testing.T) {
	api := newFakeAPI(tracker, artist, painter)
	api.likes[tracker.ID] = &twitter.LikedTweetsResponse{
		Data: []twitter.Tweet{
			post("1585497795418820609", artist.ID, "k1", "k2"),
			post("42", painter.ID, "k3"),
		},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1"), photo("k2"), photo("k3")}},
	}

	p, store, log := newPoller(t, api, "@tracker")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, []string{
		"2022-10-27.A[dot]B[slash]C.@painter.42.0.jpg",
		"2022-10-27.ねばえばぎぶあぷ.@N_ever2_give_up.1585497795418820609.0.jpg",
		"2022-10-27.ねばえばぎぶあぷ.@N_ever2_give_up.1585497795418820609.1.jpg",
	}, listDir(t, store.GetOutputDir()))

	data, err := os.ReadFile(filepath.Join(store.GetOutputDir(),
		"2022-10-27.A[dot]B[slash]C.@painter.42.0.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "bytes of https://pbs.twimg.com/media/k3.jpg", string(data))

	assert.True(t, log.HasMessage("Poll cycle started"))
	assert.True(t, log.HasMessage("Liked posts resolved"))
	assert.Equal(t, StateIdle, p.State())
}

func TestMissingAuthorsResolvedInOneBatch(t *testing.T) {
	api := newFakeAPI(tracker, artist, painter)
	api.likes[tracker.ID] = &twitter.LikedTweetsResponse{
		Data: []twitter.Tweet{
			post("1", artist.ID, "k1"),
			post("2", painter.ID),
			post("3", artist.ID),
		},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1")}},
	}

	p, _, _ := newPoller(t, api, "tracker")
	require.NoError(t, p.RunOnce(context.Background()))
	require.NoError(t, p.RunOnce(context.Background()))

	require.Len(t, api.idLookups, 1, "cached authors are not looked up again")
	assert.ElementsMatch(t, []string{artist.ID, painter.ID}, api.idLookups[0])
	assert.Equal(t, 3, p.Cache().Len())
}

func TestSecondCycleIsIdempotent(t *testing.T) {
	api := newFakeAPI(tracker, artist)
	api.likes[tracker.ID] = &twitter.LikedTweetsResponse{
		Data:     []twitter.Tweet{post("1", artist.ID, "k1", "k2")},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1"), photo("k2")}},
	}

	p, store, _ := newPoller(t, api, "tracker")
	require.NoError(t, p.RunOnce(context.Background()))
	first := listDir(t, store.GetOutputDir())
	require.Equal(t, 2, api.downloadCount())

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, 2, api.downloadCount(), "second cycle downloads nothing")
	assert.Equal(t, first, listDir(t, store.GetOutputDir()))
}

func TestSkipPolicy(t *testing.T) {
	api := newFakeAPI(tracker, artist)
	api.likes[tracker.ID] = &twitter.LikedTweetsResponse{
		Data: []twitter.Tweet{
			post("1", "999", "k1"),             // author cannot be resolved
			post("2", artist.ID, "k2", "gone"), // media key missing from includes
			post("3", artist.ID, "k3"),
		},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1"), photo("k2"), photo("k3")}},
	}

	p, store, log := newPoller(t, api, "tracker")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, []string{
		"2022-10-27.ねばえばぎぶあぷ.@N_ever2_give_up.3.0.jpg",
	}, listDir(t, store.GetOutputDir()))
	assert.NotEmpty(t, log.GetMessagesByLevel("WARN"), "missing media is warned about")
}

func TestAuthFailureStopsImmediately(t *testing.T) {
	api := newFakeAPI(tracker, second, artist)
	api.likeErrs[tracker.ID] = errs.New(errs.ErrorTypeAuth, 401, "unauthorized")
	api.likes[second.ID] = &twitter.LikedTweetsResponse{
		Data:     []twitter.Tweet{post("1", artist.ID, "k1")},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1")}},
	}

	p, store, log := newPoller(t, api, "tracker", "second")

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on auth failure")
	}

	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
	assert.Equal(t, []string{"usernames", "likes:100"}, api.calls, "no calls after the rejection")
	assert.Empty(t, listDir(t, store.GetOutputDir()))
	assert.True(t, log.HasMessage("check the bearer token"))
}

func TestPerUserErrorSkipsOnlyThatUser(t *testing.T) {
	api := newFakeAPI(tracker, second, artist)
	api.likeErrs[tracker.ID] = errs.New(errs.ErrorTypeServerError, 503, "unavailable")
	api.likes[second.ID] = &twitter.LikedTweetsResponse{
		Data:     []twitter.Tweet{post("1", artist.ID, "k1")},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1")}},
	}

	p, store, log := newPoller(t, api, "tracker", "second")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Len(t, listDir(t, store.GetOutputDir()), 1)
	assert.True(t, log.HasMessage("Skipping user for this cycle"))
}

func TestDownloadFailureIsIsolated(t *testing.T) {
	api := newFakeAPI(tracker, artist)
	api.likes[tracker.ID] = &twitter.LikedTweetsResponse{
		Data:     []twitter.Tweet{post("1", artist.ID, "k1", "k2")},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1"), photo("k2")}},
	}
	api.mediaErrs[photo("k1").URL] = errs.New(errs.ErrorTypeNotFound, 404, "gone")

	p, store, log := newPoller(t, api, "tracker")
	require.NoError(t, p.RunOnce(context.Background()))

	assert.Equal(t, []string{"2022-10-27.ねばえばぎぶあぷ.@N_ever2_give_up.1.1.jpg"}, listDir(t, store.GetOutputDir()))
	assert.True(t, log.HasMessage("Download failed"))

	// The failed item is retried on the next cycle
	delete(api.mediaErrs, photo("k1").URL)
	require.NoError(t, p.RunOnce(context.Background()))
	assert.Len(t, listDir(t, store.GetOutputDir()), 2)
}

func TestManifestRecordsDownloads(t *testing.T) {
	api := newFakeAPI(tracker, artist)
	api.likes[tracker.ID] = &twitter.LikedTweetsResponse{
		Data:     []twitter.Tweet{post("1", artist.ID, "k1")},
		Includes: twitter.Includes{Media: []twitter.Media{photo("k1")}},
	}

	p, store, _ := newPoller(t, api, "tracker")
	manifest := metadata.NewManifest(store.GetOutputDir())
	p.SetRecorder(manifest)
	require.NoError(t, p.RunOnce(context.Background()))

	records, err := manifest.Load()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tracker", records[0].LikedBy)
	assert.Equal(t, artist.Username, records[0].Author)
}

func TestStartupResolution(t *testing.T) {
	t.Run("unknown username is fatal", func(t *testing.T) {
		api := newFakeAPI(tracker)
		p, _, _ := newPoller(t, api, "tracker", "nobody")

		err := p.Run(context.Background())
		require.Error(t, err)
		assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
		assert.Equal(t, 1, api.callCount())
	})

	t.Run("invalid username is rejected before any call", func(t *testing.T) {
		api := newFakeAPI(tracker)
		p, _, _ := newPoller(t, api, "not a valid name!")

		require.Error(t, p.RunOnce(context.Background()))
		assert.Equal(t, 0, api.callCount())
	})

	t.Run("lookup failure is fatal", func(t *testing.T) {
		api := newFakeAPI(tracker)
		api.lookupErr = fmt.Errorf("connection refused")
		p, _, _ := newPoller(t, api, "tracker")

		require.Error(t, p.Run(context.Background()))
	})

	t.Run("tracked users seed the cache in order", func(t *testing.T) {
		api := newFakeAPI(tracker, second)
		p, _, _ := newPoller(t, api, "@second", "Tracker")

		require.NoError(t, p.RunOnce(context.Background()))
		assert.Equal(t, []twitter.User{second, tracker}, p.Tracked())
		_, ok := p.Cache().Get(tracker.ID)
		assert.True(t, ok)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	api := newFakeAPI(tracker)
	p, _, _ := newPoller(t, api, "tracker")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Greater(t, api.callCount(), 2, "several cycles ran")
	assert.Equal(t, StateIdle, p.State())
}

func TestTrackedIsSafeDuringRun(t *testing.T) {
	api := newFakeAPI(tracker, second)
	p, _, _ := newPoller(t, api, "tracker", "second")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		_ = p.Tracked()
		_ = p.State()
	}
	cancel()
	require.NoError(t, <-done)

	tracked := p.Tracked()
	require.Len(t, tracked, 2)
	tracked[0] = twitter.User{}
	assert.Equal(t, tracker, p.Tracked()[0], "Tracked returns a copy")
}
