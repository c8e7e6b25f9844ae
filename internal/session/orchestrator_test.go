package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	audioimpl "github.com/foxseedlab/livescribe/external/audio"
	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/foxseedlab/livescribe/internal/capture"
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/repository"
	"github.com/foxseedlab/livescribe/internal/segment"
	"github.com/foxseedlab/livescribe/internal/transcriber"
)

// paced emits two bytes every 10ms, roughly real time for MonoPCM16(100).
type pacedStream struct {
	closed    chan struct{}
	closeOnce sync.Once
	limit     int
	sent      int
}

func (s *pacedStream) Read(p []byte) (int, error) {
	if s.limit > 0 && s.sent >= s.limit {
		return 0, io.EOF
	}
	select {
	case <-s.closed:
		return 0, io.EOF
	case <-time.After(10 * time.Millisecond):
	}
	n := copy(p, []byte{0x01, 0x02})
	s.sent += n
	return n, nil
}

func (s *pacedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type fakeSource struct {
	err   error
	limit int
	urls  []string
}

func (s *fakeSource) Open(_ context.Context, url string) (io.ReadCloser, error) {
	s.urls = append(s.urls, url)
	if s.err != nil {
		return nil, s.err
	}
	return &pacedStream{closed: make(chan struct{}), limit: s.limit}, nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, pageURL string) (string, error) {
	return pageURL + "/media", nil
}

type rawEncoder struct{}

func (rawEncoder) Extension() string { return "raw" }

func (rawEncoder) Encode(w io.Writer, pcm io.Reader, n int64, _ audio.PCMFormat) error {
	_, err := io.CopyN(w, pcm, n)
	return err
}

type fakeModel struct {
	silent map[string]bool
	err    error
}

func (m *fakeModel) Transcribe(_ context.Context, path, _ string) iter.Seq2[transcriber.Utterance, error] {
	return func(yield func(transcriber.Utterance, error) bool) {
		if m.err != nil {
			yield(transcriber.Utterance{}, m.err)
			return
		}
		if m.silent[filepath.Base(path)] {
			return
		}
		yield(transcriber.Utterance{Start: 0, End: time.Second, Text: "heard " + filepath.Base(path)}, nil)
	}
}

type recordingStore struct {
	mu      sync.Mutex
	entries []remote.Entry
}

func (s *recordingStore) Name() string { return "recording" }

func (s *recordingStore) Append(_ context.Context, e remote.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingStore) Entries() []remote.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

type failingStore struct {
	mu    sync.Mutex
	calls int
}

func (s *failingStore) Name() string { return "failing" }

func (s *failingStore) Append(context.Context, remote.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("remote store unavailable")
}

func (s *failingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingRepo struct {
	mu        sync.Mutex
	created   []repository.CreateSessionInput
	completed []repository.CompleteSessionInput
}

func (r *recordingRepo) CreateSession(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	r.mu.Lock()
	r.created = append(r.created, input)
	r.mu.Unlock()
	return repository.Nop{}.CreateSession(ctx, input)
}

func (r *recordingRepo) CompleteSession(_ context.Context, input repository.CompleteSessionInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, input)
	return nil
}

func (r *recordingRepo) InsertSegment(context.Context, repository.InsertSegmentInput) error {
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	out := t.TempDir()
	return &config.Config{
		StreamURL:             "https://example.com/live.m3u8",
		OutputDir:             out,
		ChunksDir:             filepath.Join(out, "audio_chunks"),
		TranscriptsDir:        filepath.Join(out, "transcripts"),
		SampleRate:            100,
		SegmentDuration:       200 * time.Millisecond,
		CutPollInterval:       20 * time.Millisecond,
		ReadinessPollInterval: 10 * time.Millisecond,
		ReadinessStablePolls:  2,
		ReadinessMaxWait:      500 * time.Millisecond,
		CaptureStartupTimeout: time.Second,
		CaptureStopTimeout:    time.Second,
		ShutdownStepTimeout:   2 * time.Second,
		UploadDrainTimeout:    2 * time.Second,
		UploadCallTimeout:     time.Second,
		UploadRatePerMinute:   60000,
		TranscribeLanguage:    "es",
		TranscriptTitle:       "LIVE TRANSCRIPT",
		TranscriptTimezone:    "UTC",
	}
}

type harness struct {
	cfg    *config.Config
	source *fakeSource
	model  *fakeModel
	store  *recordingStore
	repo   *recordingRepo
	orch   *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg:    testConfig(t),
		source: &fakeSource{},
		model:  &fakeModel{},
		store:  &recordingStore{},
		repo:   &recordingRepo{},
	}
	h.orch = NewOrchestrator(h.cfg, Dependencies{
		Source:   h.source,
		Resolver: fakeResolver{},
		Encoder:  rawEncoder{},
		Model:    h.model,
		Prober:   audioimpl.NewFileProber(),
		Store:    remote.NewMulti(h.store),
		Repo:     h.repo,
	})
	return h
}

func chunkFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "chunk_*.raw"))
	if err != nil {
		t.Fatalf("glob chunks: %v", err)
	}
	slices.Sort(matches)
	return matches
}

func readTranscript(t *testing.T, dir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "session_*.txt"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected one transcript log, got %v (%v)", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	return string(data)
}

func TestOrchestrator_RunCutsTranscribesAndUploads(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(700*time.Millisecond, cancel)

	if err := h.orch.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks := chunkFiles(t, h.cfg.ChunksDir)
	if len(chunks) < 2 {
		t.Fatalf("expected at least two segments, got %v", chunks)
	}
	var total int64
	for i, path := range chunks {
		_, seq, _, ok := segment.ParseFileName(filepath.Base(path))
		if !ok || seq != i {
			t.Fatalf("segment %s out of sequence at %d", path, i)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", path, err)
		}
		total += info.Size()
	}
	if total == 0 || total%2 != 0 {
		t.Fatalf("segments hold %d bytes, want whole samples", total)
	}

	entries := h.store.Entries()
	if len(entries) != len(chunks) {
		t.Fatalf("expected %d uploads, got %d", len(chunks), len(entries))
	}
	for i, e := range entries {
		if e.Sequence != i || e.Segment != filepath.Base(chunks[i]) {
			t.Fatalf("upload %d out of order: %+v", i, e)
		}
	}
	if entries[0].Duration != h.cfg.SegmentDuration {
		t.Fatalf("expected first window of %s, got %s", h.cfg.SegmentDuration, entries[0].Duration)
	}

	log := readTranscript(t, h.cfg.TranscriptsDir)
	for _, path := range chunks {
		if !strings.Contains(log, "heard "+filepath.Base(path)) {
			t.Fatalf("transcript missing %s:\n%s", path, log)
		}
	}

	buffers, _ := filepath.Glob(filepath.Join(h.cfg.OutputDir, "capture_*.pcm"))
	if len(buffers) != 0 {
		t.Fatalf("expected capture buffer removed, found %v", buffers)
	}
	if len(h.repo.completed) != 1 || h.repo.completed[0].Status != repository.SessionStatusCompleted {
		t.Fatalf("unexpected session completion: %+v", h.repo.completed)
	}
	if h.repo.completed[0].SegmentCount != len(chunks) {
		t.Fatalf("expected %d segments recorded, got %d", len(chunks), h.repo.completed[0].SegmentCount)
	}
}

func TestOrchestrator_RunSourceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.source.err = &capture.SourceUnavailableError{URL: h.cfg.StreamURL, Err: errors.New("not live")}

	err := h.orch.Run(context.Background())
	if !errors.Is(err, capture.ErrSourceUnavailable) {
		t.Fatalf("expected source unavailable, got %v", err)
	}
	buffers, _ := filepath.Glob(filepath.Join(h.cfg.OutputDir, "capture_*.pcm"))
	if len(buffers) != 0 {
		t.Fatalf("expected no buffer, found %v", buffers)
	}
	if len(h.repo.completed) != 1 || h.repo.completed[0].Status != repository.SessionStatusFailed {
		t.Fatalf("unexpected session completion: %+v", h.repo.completed)
	}
}

func TestOrchestrator_RunCaptureTerminated(t *testing.T) {
	h := newHarness(t)
	h.cfg.KeepCaptureBuffer = true
	// 50 bytes is 250ms: one full window plus a tail.
	h.source.limit = 50

	err := h.orch.Run(context.Background())
	var terminated *capture.CaptureTerminatedError
	if !errors.As(err, &terminated) {
		t.Fatalf("expected CaptureTerminatedError, got %v", err)
	}
	if terminated.FlushedBytes != 50 {
		t.Fatalf("expected 50 flushed bytes, got %d", terminated.FlushedBytes)
	}

	chunks := chunkFiles(t, h.cfg.ChunksDir)
	if len(chunks) != 2 {
		t.Fatalf("expected full window plus tail, got %v", chunks)
	}
	if len(h.store.Entries()) != 2 {
		t.Fatalf("expected both segments uploaded, got %d", len(h.store.Entries()))
	}
	buffers, _ := filepath.Glob(filepath.Join(h.cfg.OutputDir, "capture_*.pcm"))
	if len(buffers) != 1 {
		t.Fatalf("expected capture buffer kept, found %v", buffers)
	}
	if h.repo.completed[0].Status != repository.SessionStatusFailed {
		t.Fatalf("unexpected session completion: %+v", h.repo.completed)
	}
}

func TestOrchestrator_RunResolvesPageURL(t *testing.T) {
	h := newHarness(t)
	h.cfg.StreamURL = ""
	h.cfg.StreamPageURL = "https://www.youtube.com/watch?v=abc"
	h.source.err = errors.New("refused")

	_ = h.orch.Run(context.Background())
	if len(h.source.urls) != 1 || h.source.urls[0] != "https://www.youtube.com/watch?v=abc/media" {
		t.Fatalf("expected resolved url, got %v", h.source.urls)
	}
	if h.repo.created[0].Source != h.cfg.StreamPageURL || h.repo.created[0].Mode != ModeCapture {
		t.Fatalf("unexpected session record: %+v", h.repo.created[0])
	}
}

func TestOrchestrator_RunRequiresStream(t *testing.T) {
	h := newHarness(t)
	h.cfg.StreamURL = ""
	if err := h.orch.Run(context.Background()); err == nil {
		t.Fatal("expected error without a stream")
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeWAV(t *testing.T, path string, d time.Duration) {
	t.Helper()
	format := audio.MonoPCM16(16000)
	pcm := make([]byte, format.Offset(d))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := audioimpl.NewWAVEncoder().Encode(f, bytes.NewReader(pcm), int64(len(pcm)), format); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func TestOrchestrator_TranscribeFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "interview.wav")
	writeWAV(t, path, 10*time.Second)

	if err := h.orch.TranscribeFile(context.Background(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := h.store.Entries()
	if len(entries) != 1 || entries[0].Segment != "interview.wav" || entries[0].Sequence != -1 {
		t.Fatalf("unexpected uploads: %+v", entries)
	}
	if entries[0].Duration != 10*time.Second {
		t.Fatalf("expected duration of the audio file, got %s", entries[0].Duration)
	}
	log := readTranscript(t, h.cfg.TranscriptsDir)
	if !strings.Contains(log, "heard interview.wav") || !strings.Contains(log, "Duration: 10.0s") {
		t.Fatalf("unexpected transcript:\n%s", log)
	}
	if h.repo.created[0].Mode != ModeSingleFile || h.repo.completed[0].Status != repository.SessionStatusCompleted {
		t.Fatalf("unexpected session records: %+v %+v", h.repo.created, h.repo.completed)
	}
}

func TestOrchestrator_TranscribeFileUnreadableHeader(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "interview.wav")
	writeFile(t, path, []byte("pcm"))

	if err := h.orch.TranscribeFile(context.Background(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := h.store.Entries()
	if len(entries) != 1 || entries[0].Duration != time.Second {
		t.Fatalf("expected duration from last utterance, got %+v", entries)
	}
}

func TestOrchestrator_TranscribeFileFailure(t *testing.T) {
	h := newHarness(t)
	h.model.err = errors.New("model crashed")
	path := filepath.Join(t.TempDir(), "interview.wav")
	writeFile(t, path, []byte("pcm"))

	err := h.orch.TranscribeFile(context.Background(), path)
	var te *transcriber.TranscriptionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TranscriptionError, got %v", err)
	}
	if len(h.store.Entries()) != 0 {
		t.Fatal("expected nothing uploaded")
	}
	if h.repo.completed[0].Status != repository.SessionStatusFailed {
		t.Fatalf("unexpected session completion: %+v", h.repo.completed)
	}
}

func TestOrchestrator_TranscribeFileSilence(t *testing.T) {
	h := newHarness(t)
	h.model.silent = map[string]bool{"quiet.wav": true}
	path := filepath.Join(t.TempDir(), "quiet.wav")
	writeFile(t, path, []byte("pcm"))

	if err := h.orch.TranscribeFile(context.Background(), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.store.Entries()) != 0 {
		t.Fatal("expected silent segment not uploaded")
	}
	if log := readTranscript(t, h.cfg.TranscriptsDir); strings.Contains(log, "quiet.wav") {
		t.Fatalf("expected no block for silent segment:\n%s", log)
	}
}

func TestOrchestrator_TranscribeFileMissing(t *testing.T) {
	h := newHarness(t)
	if err := h.orch.TranscribeFile(context.Background(), filepath.Join(t.TempDir(), "nope.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist error, got %v", err)
	}
}

func TestOrchestrator_Watch(t *testing.T) {
	h := newHarness(t)
	writeFile(t, filepath.Join(h.cfg.ChunksDir, "chunk_20250301_180000_000.raw"), []byte("first"))
	writeFile(t, filepath.Join(h.cfg.ChunksDir, "chunk_20250301_180000_001.raw"), []byte("second"))
	writeFile(t, filepath.Join(h.cfg.ChunksDir, "notes.txt"), []byte("ignored"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.orch.Watch(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for len(h.store.Entries()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := h.store.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two uploads, got %+v", entries)
	}
	if entries[0].Sequence != 0 || entries[1].Sequence != 1 {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if h.repo.created[0].Mode != ModeWatch {
		t.Fatalf("unexpected session record: %+v", h.repo.created[0])
	}
}

func TestOrchestrator_WatchDropsFailedUploads(t *testing.T) {
	h := newHarness(t)
	store := &failingStore{}
	h.orch = NewOrchestrator(h.cfg, Dependencies{
		Source:   h.source,
		Resolver: fakeResolver{},
		Encoder:  rawEncoder{},
		Model:    h.model,
		Store:    remote.NewMulti(store),
		Repo:     h.repo,
	})
	for i := range 5 {
		writeFile(t, filepath.Join(h.cfg.ChunksDir, fmt.Sprintf("chunk_20250301_180000_%03d.raw", i)), []byte("audio"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.orch.Watch(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for store.Calls() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("failed uploads must not fail the session, got %v", err)
	}

	if store.Calls() != 5 {
		t.Fatalf("expected one attempt per segment, got %d", store.Calls())
	}
	if n := strings.Count(readTranscript(t, h.cfg.TranscriptsDir), "--- "); n != 5 {
		t.Fatalf("expected five transcript blocks, got %d", n)
	}
	sum := h.orch.Summary()
	if sum.UploadsFailed != 5 || sum.UploadsDelivered != 0 {
		t.Fatalf("unexpected upload counts: %+v", sum)
	}
	if sum.Segments != 5 || sum.Transcribed != 5 || sum.Failed != 0 {
		t.Fatalf("unexpected segment counts: %+v", sum)
	}
	if h.repo.completed[0].Status != repository.SessionStatusCompleted {
		t.Fatalf("unexpected session completion: %+v", h.repo.completed)
	}
}
