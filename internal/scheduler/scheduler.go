package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rss_watch/internal/dedup"
	"rss_watch/internal/model"
	"rss_watch/internal/state"
)

// Limits for Recent.
const (
	DefaultRecent = 10
	MaxRecent     = 50
)

var (
	// ErrBusy is returned by Check while a cycle is running.
	ErrBusy = errors.New("already checking")
	// ErrStopped is returned by Check once Run has returned.
	ErrStopped = errors.New("scheduler stopped")
)

// Fetcher retrieves the current posts of a feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]model.Post, error)
}

// Notifier delivers a post to subscribers and returns the number of deliveries.
type Notifier interface {
	Notify(ctx context.Context, post model.Post, subscribers []model.Subscriber) int
}

// FeedFailure records a feed that could not be fetched in a cycle.
type FeedFailure struct {
	URL string
	Err error
}

// Result summarizes a polling cycle.
type Result struct {
	CycleID   string
	Feeds     int
	NewPosts  int
	Delivered int
	Seeded    int
	Failed    []FeedFailure
}

type checkRequest struct {
	reply chan Result
}

// Scheduler polls all feeds periodically and on demand. Cycles never overlap:
// timer ticks and manual checks are both served by the goroutine running Run.
type Scheduler struct {
	state    *state.Manager
	fetcher  Fetcher
	notifier Notifier
	log      *slog.Logger

	interval    time.Duration
	startDelay  time.Duration
	concurrency int

	busy     atomic.Bool
	requests chan checkRequest
	stopped  chan struct{}
}

// New creates a Scheduler polling every 5 minutes, starting 10 seconds after Run.
func New(st *state.Manager, f Fetcher, n Notifier, log *slog.Logger) *Scheduler {
	return &Scheduler{
		state:       st,
		fetcher:     f,
		notifier:    n,
		log:         log,
		interval:    5 * time.Minute,
		startDelay:  10 * time.Second,
		concurrency: 4,
		requests:    make(chan checkRequest),
		stopped:     make(chan struct{}),
	}
}

// SetInterval overrides the polling interval.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval = d
}

// SetStartDelay overrides the delay before the first scheduled cycle.
func (s *Scheduler) SetStartDelay(d time.Duration) {
	s.startDelay = d
}

// SetConcurrency sets how many feeds are fetched at once.
func (s *Scheduler) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

// Run serves timer ticks and manual checks, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.stopped)

	timer := time.NewTimer(s.startDelay)
	defer timer.Stop()

	s.log.Info("scheduler started", "interval", s.interval, "start_delay", s.startDelay)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-timer.C:
			if s.busy.CompareAndSwap(false, true) {
				s.runCycle(ctx, "timer")
				s.busy.Store(false)
			} else {
				s.log.Debug("skip scheduled cycle, manual check pending")
			}
			timer.Reset(s.interval)
		case req := <-s.requests:
			req.reply <- s.runCycle(ctx, "manual")
			s.busy.Store(false)
		}
	}
}

// Check runs a cycle now and returns its result. It returns ErrBusy without
// waiting if a cycle is already running.
func (s *Scheduler) Check(ctx context.Context) (Result, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}

	req := checkRequest{reply: make(chan Result, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		s.busy.Store(false)
		return Result{}, ctx.Err()
	case <-s.stopped:
		s.busy.Store(false)
		return Result{}, ErrStopped
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Busy reports whether a cycle is running or about to run.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

type fetched struct {
	posts []model.Post
	err   error
}

func (s *Scheduler) fetchAll(ctx context.Context, feeds []string) []fetched {
	out := make([]fetched, len(feeds))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, url := range feeds {
		g.Go(func() error {
			posts, err := s.fetcher.Fetch(ctx, url)
			out[i] = fetched{posts: posts, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Scheduler) runCycle(ctx context.Context, trigger string) Result {
	res := Result{CycleID: uuid.NewString()}
	log := s.log.With("cycle_id", res.CycleID, "trigger", trigger)
	start := time.Now()

	feeds := s.state.Feeds()
	res.Feeds = len(feeds)
	log.Debug("cycle started", "feeds", len(feeds))

	results := s.fetchAll(ctx, feeds)
	for i, url := range feeds {
		if ctx.Err() != nil {
			log.Warn("cycle interrupted", "error", ctx.Err())
			break
		}
		r := results[i]
		if r.err != nil {
			log.Warn("fetch feed", "url", url, "error", r.err)
			res.Failed = append(res.Failed, FeedFailure{URL: url, Err: r.err})
			continue
		}
		s.processFeed(ctx, log, url, r.posts, &res)
	}

	if err := s.state.Flush(ctx); err != nil {
		log.Error("retry save", "error", err)
	}

	log.Info("cycle finished",
		"feeds", res.Feeds,
		"new_posts", res.NewPosts,
		"delivered", res.Delivered,
		"seeded", res.Seeded,
		"failed", len(res.Failed),
		"duration", time.Since(start),
	)
	return res
}

func (s *Scheduler) processFeed(ctx context.Context, log *slog.Logger, url string, posts []model.Post, res *Result) {
	fresh, seeded := s.state.FilterNew(url, posts)
	if !seeded {
		// First poll of a feed that was never seeded: its backlog is not news.
		if err := s.state.MarkSeen(ctx, url, dedup.IDs(posts)); err != nil {
			log.Error("seed feed", "url", url, "error", err)
		}
		res.Seeded++
		log.Info("feed seeded", "url", url, "posts", len(posts))
		return
	}
	if len(fresh) == 0 {
		return
	}

	subs := s.state.Subscribers()
	notified := make([]string, 0, len(fresh))
	for _, p := range fresh {
		if ctx.Err() != nil {
			break
		}
		n := s.notifier.Notify(ctx, p, subs)
		res.Delivered += n
		// A post cut short by cancellation stays unseen and is sent again next cycle.
		if ctx.Err() != nil && n < len(subs) {
			break
		}
		notified = append(notified, p.ID)
	}
	res.NewPosts += len(notified)
	log.Info("new posts", "url", url, "count", len(notified), "subscribers", len(subs))
	if pending := len(fresh) - len(notified); pending > 0 {
		log.Warn("cycle cancelled, posts left for next cycle", "url", url, "pending", pending)
	}

	if err := s.state.MarkSeen(ctx, url, notified); err != nil {
		log.Error("mark seen", "url", url, "error", err)
	}
}

// Recent fetches every feed and returns up to n posts, newest first. Posts
// without a date sort last. Seen state is not touched. n <= 0 means
// DefaultRecent; values above MaxRecent are capped.
func (s *Scheduler) Recent(ctx context.Context, n int) ([]model.Post, []FeedFailure) {
	switch {
	case n <= 0:
		n = DefaultRecent
	case n > MaxRecent:
		n = MaxRecent
	}

	feeds := s.state.Feeds()
	var (
		all    []model.Post
		failed []FeedFailure
	)
	for i, r := range s.fetchAll(ctx, feeds) {
		if r.err != nil {
			s.log.Warn("fetch feed", "url", feeds[i], "error", r.err)
			failed = append(failed, FeedFailure{URL: feeds[i], Err: r.err})
			continue
		}
		all = append(all, r.posts...)
	}

	slices.SortStableFunc(all, newestFirst)
	if len(all) > n {
		all = all[:n]
	}
	return all, failed
}

func newestFirst(a, b model.Post) int {
	switch {
	case a.Published == nil && b.Published == nil:
		return 0
	case a.Published == nil:
		return 1
	case b.Published == nil:
		return -1
	default:
		return b.Published.Compare(*a.Published)
	}
}
