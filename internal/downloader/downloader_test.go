package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/hash/sha256"
	"github.com/JakeFAU/hltv-demo-scraper/internal/lookup"
	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
	"github.com/JakeFAU/hltv-demo-scraper/internal/publisher/memory"
	"github.com/JakeFAU/hltv-demo-scraper/internal/retry"
	memstore "github.com/JakeFAU/hltv-demo-scraper/internal/storage/memory"
	"github.com/JakeFAU/hltv-demo-scraper/internal/worker"
)

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

type stubMatches struct {
	matches map[string][]crawler.MatchRecord
	err     error
}

func (s *stubMatches) MatchesForEvent(_ context.Context, eventID string) ([]crawler.MatchRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.matches[eventID], nil
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) stages() []progress.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Stage, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Stage)
	}
	return out
}

// replayServer serves /download/demo/<id>/x with a per-id body, or a fixed
// status for ids listed in blocked.
type replayServer struct {
	*httptest.Server
	hits    atomic.Int64
	blocked map[string]int
}

func newReplayServer(t *testing.T, blocked map[string]int) *replayServer {
	t.Helper()
	rs := &replayServer{blocked: blocked}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.hits.Add(1)
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 3 || parts[0] != "download" || parts[1] != "demo" {
			http.NotFound(w, r)
			return
		}
		id := parts[2]
		if code, ok := rs.blocked[id]; ok {
			w.WriteHeader(code)
			return
		}
		_, _ = fmt.Fprint(w, replayBody(id))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func replayBody(id string) string {
	return strings.Repeat("replay-"+id+";", 64)
}

func (rs *replayServer) match(id string) crawler.MatchRecord {
	return crawler.MatchRecord{
		Teams:    []string{"Alpha", "Beta"},
		MatchURL: rs.URL + "/matches/" + id + "/alpha-vs-beta",
		DemoID:   id,
		DemoURL:  rs.URL + "/download/demo/" + id + "/x",
	}
}

func newTestDownloader(t *testing.T, cfg Config, sleeper *recordingSleeper, matches crawler.MatchSource, opts ...Option) *Downloader {
	t.Helper()
	policy := retry.NewPolicy(retry.Config{MaxAttempts: 3, EmergencySleep: time.Minute}, sleeper, nil, zap.NewNop())
	d, err := New(cfg, nil, policy, sleeper, matches, opts...)
	require.NoError(t, err)
	return d
}

func TestDownloadRejectsAmbiguousRequest(t *testing.T) {
	t.Parallel()

	d := newTestDownloader(t, Config{}, &recordingSleeper{}, nil)
	_, err := d.Download(context.Background(), Request{OutputRoot: t.TempDir()})
	require.ErrorIs(t, err, ErrUsage)

	_, err = d.Download(context.Background(), Request{EventID: "1", LookupPath: "x.json", OutputRoot: t.TempDir()})
	require.ErrorIs(t, err, ErrUsage)
}

func TestDownloadSingleEvent(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, nil)
	sleeper := &recordingSleeper{}
	matches := &stubMatches{matches: map[string][]crawler.MatchRecord{
		"9999": {srv.match("88888"), srv.match("88889")},
	}}
	root := t.TempDir()

	d := newTestDownloader(t, Config{}, sleeper, matches)
	report, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: root})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Outcomes, 2)
	for _, id := range []string{"88888", "88889"} {
		data, err := os.ReadFile(filepath.Join(root, "demofiles", "9999", id+".rar"))
		require.NoError(t, err)
		assert.Equal(t, replayBody(id), string(data))
	}
	first := report.Outcomes[0]
	assert.Equal(t, "88888", first.DemoID)
	assert.Equal(t, sha256.Hash([]byte(replayBody("88888"))), first.Digest)
	assert.EqualValues(t, len(replayBody("88888")), first.Bytes)
	assert.Equal(t, report.Outcomes[0].Bytes+report.Outcomes[1].Bytes, report.Bytes)
	assert.Equal(t, []time.Duration{DefaultDelay, DefaultDelay}, sleeper.Sleeps(), "politeness delay after every file")
}

func TestDownloadBlockedReplayLeavesNoFile(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, map[string]int{"88888": http.StatusForbidden})
	sleeper := &recordingSleeper{}
	matches := &stubMatches{matches: map[string][]crawler.MatchRecord{"9999": {srv.match("88888")}}}
	root := t.TempDir()

	d := newTestDownloader(t, Config{}, sleeper, matches)
	report, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: root})
	require.NoError(t, err, "a blocked replay does not abort the run")

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, crawler.OutcomeBlocked, outcome.Status)
	assert.ErrorIs(t, outcome.Err, retry.ErrBlocked)
	assert.Equal(t, 1, report.Blocked)
	assert.EqualValues(t, 3, srv.hits.Load())
	assert.Equal(t, []time.Duration{time.Minute, time.Minute, time.Minute, DefaultDelay}, sleeper.Sleeps())

	assert.DirExists(t, filepath.Join(root, "demofiles", "9999"), "event directory is prepared before the request")
	assert.NoFileExists(t, filepath.Join(root, "demofiles", "9999", "88888.rar"))
	entries, err := os.ReadDir(filepath.Join(root, "demofiles"))
	require.NoError(t, err)
	for _, e := range entries {
		inner, err := os.ReadDir(filepath.Join(root, "demofiles", e.Name()))
		require.NoError(t, err)
		assert.Empty(t, inner, "no partial files may remain")
	}
}

func TestDownloadFromLookupSkipsEventsWithoutMatches(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, nil)
	root := t.TempDir()
	doc := crawler.LookupDocument{
		"9999": {EventData: crawler.EventRecord{EventID: "9999"}, Matches: []crawler.MatchRecord{srv.match("88888")}},
		"1000": {EventData: crawler.EventRecord{EventID: "1000"}},
	}
	path, err := lookup.Save(root, "event_lookup__2021_04_22__2022_04_22__ONLINE.json", doc)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	d := newTestDownloader(t, Config{}, &recordingSleeper{}, nil, WithLogger(zap.New(core)))
	report, err := d.Download(context.Background(), Request{LookupPath: path, OutputRoot: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"1000"}, report.SkippedEvents)
	assert.Equal(t, 1, report.Succeeded)
	assert.FileExists(t, filepath.Join(root, "demofiles", "9999", "88888.rar"))
	assert.Equal(t, 1, logs.FilterMessage("event has no matches, skipping").Len())
}

func TestDownloadParallel(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, map[string]int{"3": http.StatusTooManyRequests})
	var ids []crawler.MatchRecord
	for i := 1; i <= 6; i++ {
		ids = append(ids, srv.match(fmt.Sprint(i)))
	}
	matches := &stubMatches{matches: map[string][]crawler.MatchRecord{"9999": ids}}
	root := t.TempDir()

	d := newTestDownloader(t, Config{Workers: 3}, &recordingSleeper{}, matches)
	report, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: root, Parallel: true})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 6)
	for i, o := range report.Outcomes {
		assert.Equal(t, fmt.Sprint(i+1), o.DemoID, "outcomes keep job order")
	}
	assert.Equal(t, 5, report.Succeeded)
	assert.Equal(t, 1, report.Blocked)
	assert.NoFileExists(t, filepath.Join(root, "demofiles", "9999", "3.rar"))
	assert.FileExists(t, filepath.Join(root, "demofiles", "9999", "6.rar"))
}

func TestDownloadFilesystemErrorFailsOnlyThatUnit(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, nil)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "demofiles"), 0o750))
	// A file where the event directory should be.
	require.NoError(t, os.WriteFile(filepath.Join(root, "demofiles", "9999"), []byte("x"), 0o600))

	doc := crawler.LookupDocument{
		"9999": {EventData: crawler.EventRecord{EventID: "9999"}, Matches: []crawler.MatchRecord{srv.match("1")}},
		"9998": {EventData: crawler.EventRecord{EventID: "9998"}, Matches: []crawler.MatchRecord{srv.match("2")}},
	}
	path, err := lookup.Save(root, "lookup.json", doc)
	require.NoError(t, err)

	sleeper := &recordingSleeper{}
	d := newTestDownloader(t, Config{}, sleeper, nil)
	report, err := d.Download(context.Background(), Request{LookupPath: path, OutputRoot: root})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, crawler.OutcomeSucceeded, report.Outcomes[0].Status)
	assert.Equal(t, "9998", report.Outcomes[0].EventID)
	assert.Equal(t, crawler.OutcomeFailed, report.Outcomes[1].Status)
	assert.NotErrorIs(t, report.Outcomes[1].Err, retry.ErrBlocked)
	assert.Equal(t, []time.Duration{DefaultDelay, DefaultDelay}, sleeper.Sleeps(), "no emergency sleep for filesystem errors")
}

func TestDownloadEmitsProgress(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, nil)
	matches := &stubMatches{matches: map[string][]crawler.MatchRecord{"9999": {srv.match("88888")}}}
	emitter := &captureEmitter{}
	tracker := progress.NewTracker(emitter, uuid.New())

	d := newTestDownloader(t, Config{ChunkSize: 64, ProgressStep: 256}, &recordingSleeper{}, matches, WithTracker(tracker))
	_, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: t.TempDir()})
	require.NoError(t, err)

	stages := emitter.stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, progress.StageDownloadStart, stages[0])
	assert.Equal(t, progress.StageDownloadDone, stages[len(stages)-1])
	assert.Contains(t, stages, progress.StageDownloadProgress)

	var last int64
	emitter.mu.Lock()
	for _, evt := range emitter.events {
		if evt.Stage == progress.StageDownloadProgress {
			assert.Greater(t, evt.Bytes, last, "progress is cumulative")
			last = evt.Bytes
		}
	}
	emitter.mu.Unlock()
}

func TestDownloadPublishesNotices(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, nil)
	matches := &stubMatches{matches: map[string][]crawler.MatchRecord{"9999": {srv.match("88888")}}}
	pub := memory.New()

	d := newTestDownloader(t, Config{Topic: "replays"}, &recordingSleeper{}, matches, WithPublisher(pub))
	_, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, pub.Messages(), 1)
	assert.Equal(t, "replays", pub.Messages()[0].Topic)
}

func TestDownloadMirrorsReplays(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, nil)
	matches := &stubMatches{matches: map[string][]crawler.MatchRecord{"9999": {srv.match("88888")}}}
	blobs := memstore.NewBlobStore()
	pub := memory.New()

	d := newTestDownloader(t, Config{BlobPrefix: "demofiles", Topic: "replays"}, &recordingSleeper{}, matches,
		WithBlobStore(blobs), WithPublisher(pub))
	report, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)

	obj, ok := blobs.Get("demofiles/9999/88888.rar")
	require.True(t, ok)
	assert.Equal(t, replayBody("88888"), string(obj.Data))
	assert.Equal(t, worker.DefaultContentType, obj.ContentType)
	assert.Equal(t, "memory://demofiles/9999/88888.rar", report.Outcomes[0].MirrorURI)

	require.Len(t, pub.Messages(), 1)
	notice, ok := pub.Messages()[0].Payload.(worker.Notice)
	require.True(t, ok)
	assert.Equal(t, "memory://demofiles/9999/88888.rar", notice.MirrorURI)
	assert.Equal(t, sha256.Hash([]byte(replayBody("88888"))), notice.SHA256)
}

func TestDownloadMatchListingFailure(t *testing.T) {
	t.Parallel()

	d := newTestDownloader(t, Config{}, &recordingSleeper{}, &stubMatches{err: errors.New("results blocked")})
	_, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: t.TempDir()})
	require.ErrorContains(t, err, "results blocked")
}

func TestDownloadCanceled(t *testing.T) {
	t.Parallel()

	srv := newReplayServer(t, nil)
	matches := &stubMatches{matches: map[string][]crawler.MatchRecord{"9999": {srv.match("1"), srv.match("2")}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDownloader(t, Config{}, &recordingSleeper{}, matches)
	report, err := d.Download(ctx, Request{EventID: "9999", OutputRoot: t.TempDir()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Outcomes)
}

func TestDownloadPolitenessDelay(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		cfg  Config
		want []time.Duration
	}{
		"zero config":    {cfg: Config{}, want: []time.Duration{DefaultDelay}},
		"explicit delay": {cfg: Config{Delay: 2 * time.Second}, want: []time.Duration{2 * time.Second}},
		"disabled":       {cfg: Config{Delay: 2 * time.Second, NoDelay: true}, want: nil},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := newReplayServer(t, nil)
			matches := &stubMatches{matches: map[string][]crawler.MatchRecord{"9999": {srv.match("88888")}}}
			sleeper := &recordingSleeper{}
			policy := retry.NewPolicy(retry.Config{}, sleeper, nil, nil)
			d, err := New(tc.cfg, nil, policy, sleeper, matches)
			require.NoError(t, err)

			report, err := d.Download(context.Background(), Request{EventID: "9999", OutputRoot: t.TempDir()})
			require.NoError(t, err)
			assert.Equal(t, 1, report.Succeeded)
			assert.Equal(t, tc.want, sleeper.Sleeps())
		})
	}
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil, &recordingSleeper{}, nil)
	require.Error(t, err)
	policy := retry.NewPolicy(retry.Config{}, &recordingSleeper{}, nil, nil)
	_, err = New(Config{}, nil, policy, nil, nil)
	require.Error(t, err)
}

func TestWorkerCount(t *testing.T) {
	t.Parallel()

	d := newTestDownloader(t, Config{Workers: 4}, &recordingSleeper{}, nil)
	assert.Equal(t, 1, d.workerCount(false))
	assert.Equal(t, 4, d.workerCount(true))
}
