package poller

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"likesync/internal/downloader"
	errs "likesync/pkg/errors"
	"likesync/pkg/likes"
	"likesync/pkg/logger"
	"likesync/pkg/metrics"
	"likesync/pkg/twitter"
)

// Poller states
const (
	StateIdle         = "idle"
	StateFetching     = "fetching"
	StateJoining      = "joining"
	StateSynthesizing = "synthesizing"
	StateDownloading  = "downloading"
	StateSleeping     = "sleeping"
)

// States lists every poller state
var States = []string{
	StateIdle, StateFetching, StateJoining, StateSynthesizing, StateDownloading, StateSleeping,
}

// API is the subset of the X client the poller needs
type API interface {
	likes.UserLookup
	downloader.MediaFetcher
	FetchUsersByUsernames(ctx context.Context, usernames []string) ([]twitter.User, error)
	FetchLikedPosts(ctx context.Context, userID string) (*twitter.LikedPage, error)
}

// Options configures a Poller
type Options struct {
	Usernames           []string
	PollInterval        time.Duration
	ConcurrentDownloads int
	DownloadTimeout     time.Duration
}

// Poller runs sync cycles for a fixed set of tracked users
type Poller struct {
	api      API
	storage  downloader.MediaStorage
	recorder downloader.Recorder
	cache    *likes.AuthorCache
	opts     Options
	logger   logger.Logger

	cycles int

	// mu guards tracked and state. Only the goroutine running Run or
	// RunOnce writes them, so it reads them without the lock.
	mu      sync.RWMutex
	tracked []twitter.User
	state   string
}

// New creates a Poller. The author cache is created here and lives as long
// as the Poller.
func New(api API, storage downloader.MediaStorage, opts Options, log logger.Logger) *Poller {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.ConcurrentDownloads <= 0 {
		opts.ConcurrentDownloads = 1
	}

	return &Poller{
		api:     api,
		storage: storage,
		cache:   likes.NewAuthorCache(api, log),
		opts:    opts,
		logger:  log.WithField("component", "poller"),
		state:   StateIdle,
	}
}

// SetRecorder registers a recorder for completed downloads
func (p *Poller) SetRecorder(r downloader.Recorder) {
	p.recorder = r
}

// Cache returns the author cache
func (p *Poller) Cache() *likes.AuthorCache {
	return p.cache
}

// Tracked returns the resolved tracked users in configured order
func (p *Poller) Tracked() []twitter.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.tracked)
}

// State returns the current state
func (p *Poller) State() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Poller) setState(state string) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()

	metrics.SetState(state, States)
	p.logger.DebugWithFields("Poller state", map[string]interface{}{"state": state})
}

// Run resolves the tracked users and polls until ctx is cancelled. It
// returns nil on cancellation and an auth error when the credentials are
// rejected.
func (p *Poller) Run(ctx context.Context) error {
	defer p.setState(StateIdle)

	if err := p.resolveTracked(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		if err := p.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		p.setState(StateSleeping)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.opts.PollInterval):
		}
	}
}

// RunOnce runs a single cycle, resolving the tracked users first if needed
func (p *Poller) RunOnce(ctx context.Context) error {
	defer p.setState(StateIdle)

	if p.tracked == nil {
		if err := p.resolveTracked(ctx); err != nil {
			return err
		}
	}
	return p.runCycle(ctx)
}

// resolveTracked maps the configured usernames to users. Any failure here is
// fatal: a wrong username would otherwise be skipped silently every cycle.
func (p *Poller) resolveTracked(ctx context.Context) error {
	names := make([]string, 0, len(p.opts.Usernames))
	for _, raw := range p.opts.Usernames {
		name := twitter.SanitizeUsername(raw)
		if !twitter.IsValidUsername(name) {
			return fmt.Errorf("invalid tracked username %q", raw)
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return fmt.Errorf("no tracked usernames configured")
	}

	p.setState(StateFetching)
	users, err := p.api.FetchUsersByUsernames(ctx, names)
	if err != nil {
		if errs.IsAuth(err) {
			logger.LogFatalAuth(p.logger, err)
		}
		return fmt.Errorf("failed to resolve tracked users: %w", err)
	}

	byName := make(map[string]twitter.User, len(users))
	for _, u := range users {
		byName[strings.ToLower(u.Username)] = u
	}

	tracked := make([]twitter.User, 0, len(names))
	for _, name := range names {
		u, ok := byName[strings.ToLower(name)]
		if !ok {
			return errs.New(errs.ErrorTypeNotFound, 0, "tracked user @%s not found; check the configured usernames", name)
		}
		tracked = append(tracked, u)
	}

	p.cache.Seed(tracked...)
	p.mu.Lock()
	p.tracked = tracked
	p.mu.Unlock()

	p.logger.InfoWithFields("Tracked users resolved", map[string]interface{}{
		"users": names,
	})
	return nil
}

func (p *Poller) runCycle(ctx context.Context) error {
	p.cycles++
	start := time.Now()
	metrics.PollCycles.Inc()
	defer metrics.ObserveCycleDuration(start)

	logger.LogCycleStart(p.logger, p.cycles, len(p.tracked))

	for _, user := range p.tracked {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.syncUser(ctx, user)
		if err == nil {
			continue
		}
		if errs.IsAuth(err) {
			logger.LogFatalAuth(p.logger, err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.WithError(err).WithField("username", user.Username).
			Warn("Skipping user for this cycle")
	}

	p.logger.DebugWithFields("Poll cycle finished", map[string]interface{}{
		"cycle":    p.cycles,
		"duration": time.Since(start),
	})
	return nil
}

// syncUser runs the pipeline for one tracked user
func (p *Poller) syncUser(ctx context.Context, user twitter.User) error {
	log := p.logger.WithField("username", user.Username)

	p.setState(StateFetching)
	page, err := p.api.FetchLikedPosts(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch likes for @%s: %w", user.Username, err)
	}
	if page == nil {
		page = &twitter.LikedPage{}
	}
	metrics.LikesFetched.WithLabelValues(user.Username).Add(float64(len(page.Tweets)))

	p.setState(StateJoining)
	posts, err := likes.Join(ctx, page, p.cache, log)
	if err != nil {
		return fmt.Errorf("failed to join likes for @%s: %w", user.Username, err)
	}

	p.setState(StateSynthesizing)
	candidates, rejections := likes.SynthesizeAll(posts)
	for _, r := range rejections {
		log.WarnWithFields("Skipping media", map[string]interface{}{
			"post_id":   r.PostID,
			"media_key": r.MediaKey,
			"index":     r.Index,
			"reason":    r.Reason,
		})
	}
	logger.LogLikes(log, user.Username, len(page.Tweets), len(posts), len(candidates))

	jobs := make([]downloader.Job, 0, len(candidates))
	for _, c := range candidates {
		if p.storage.Exists(c.Filename) {
			log.DebugWithFields("Media already exists", map[string]interface{}{"filename": c.Filename})
			continue
		}
		jobs = append(jobs, downloader.Job{Candidate: c, LikedBy: user.Username})
	}
	if len(jobs) == 0 {
		return nil
	}

	p.setState(StateDownloading)
	results := downloader.DownloadAll(ctx, p.opts.ConcurrentDownloads, p.opts.DownloadTimeout,
		p.api, p.storage, p.recorder, log, jobs)
	summary := downloader.Summarize(results)

	log.InfoWithFields("Downloads finished", map[string]interface{}{
		"downloaded": summary.Downloaded,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
		"bytes":      summary.Bytes,
	})
	return ctx.Err()
}
