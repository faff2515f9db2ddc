package tts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/narrate/internal/audio"
	"github.com/dgnsrekt/narrate/internal/cache"
	"github.com/dgnsrekt/narrate/tts"
	"github.com/dgnsrekt/narrate/tts/engines/mock"
)

// fakeTranscoder copies nothing; it checks the WAV exists and writes a stub MP3.
type fakeTranscoder struct {
	mu    sync.Mutex
	calls int
	err   error
	wavs  []string
}

func (f *fakeTranscoder) Convert(ctx context.Context, wavPath, mp3Path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.wavs = append(f.wavs, wavPath)
	if _, err := os.Stat(wavPath); err != nil {
		return err
	}
	if f.err != nil {
		os.WriteFile(mp3Path, []byte("partial"), 0o644)
		return f.err
	}
	return os.WriteFile(mp3Path, []byte("ID3"), 0o644)
}

type fakeProber struct{}

func (fakeProber) Duration(string) (float64, error) { return 1.25, nil }

type fakeProvisioner struct {
	err   error
	calls int
}

func (p *fakeProvisioner) EnsureAssets(ctx context.Context, modelPath, voicesPath string) (tts.ModelAssetPair, error) {
	p.calls++
	if p.err != nil {
		return tts.ModelAssetPair{}, p.err
	}
	return tts.ModelAssetPair{ModelPath: modelPath, VoicesPath: voicesPath}, nil
}

type fixture struct {
	svc        *tts.Service
	engine     *mock.MockEngine
	transcoder *fakeTranscoder
	store      *cache.DiskStore
	dir        string
}

func newFixture(t *testing.T, mutate func(*tts.Config)) *fixture {
	t.Helper()
	f := &fixture{
		engine:     mock.New(),
		transcoder: &fakeTranscoder{},
		store:      cache.NewDiskStore(),
		dir:        t.TempDir(),
	}
	cfg := tts.DefaultConfig()
	cfg.CacheDir = f.dir
	if mutate != nil {
		mutate(&cfg)
	}

	svc, err := tts.NewService(context.Background(), cfg, tts.Dependencies{
		Provisioner: &fakeProvisioner{},
		NewEngine:   f.engine.Factory(),
		Transcoder:  f.transcoder,
		Store:       f.store,
		Prober:      fakeProber{},
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	f.svc = svc
	return f
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSynthesizeHelloWorld(t *testing.T) {
	f := newFixture(t, nil)

	entry, err := f.svc.Synthesize(context.Background(), "Hello world", "", "")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	key := tts.NewRequest("Hello world", "af_bella", "en-us", 1.0).Key()
	if entry.OriginalAudio != key+".mp3" {
		t.Errorf("OriginalAudio = %s, want %s.mp3", entry.OriginalAudio, key)
	}
	want := tts.RequestData{InputText: "Hello world", Service: tts.ServiceID, Voice: "af_bella", Lang: "en-us"}
	if entry.InputData != want {
		t.Errorf("InputData = %+v, want %+v", entry.InputData, want)
	}
	if entry.InputText != "Hello world" || entry.Duration != 1.25 {
		t.Errorf("unexpected entry %+v", entry)
	}

	if !exists(filepath.Join(f.dir, entry.OriginalAudio)) {
		t.Error("mp3 not written")
	}
	if exists(filepath.Join(f.dir, key+".wav")) {
		t.Error("intermediate wav not removed")
	}
	if !exists(filepath.Join(f.dir, cache.IndexFile)) {
		t.Error("index not written")
	}

	calls := f.engine.Calls()
	if len(calls) != 1 || calls[0].Text != "Hello world" || calls[0].Voice != "af_bella" || calls[0].Lang != "en-us" {
		t.Errorf("unexpected engine calls %+v", calls)
	}
}

func TestSynthesizeCacheHit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Synthesize(ctx, "Cached line", "", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Synthesize(ctx, "Cached line", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if *first != *second {
		t.Errorf("cache hit returned %+v, want %+v", second, first)
	}

	// Speed is not part of the key.
	req := tts.NewRequest("Cached line", "af_bella", "en-us", 1.5)
	if _, err := f.svc.SynthesizeRequest(ctx, req, "", ""); err != nil {
		t.Fatal(err)
	}

	if n := f.engine.CallCount(); n != 1 {
		t.Errorf("engine called %d times, want 1", n)
	}
	if f.transcoder.calls != 1 {
		t.Errorf("transcoder called %d times, want 1", f.transcoder.calls)
	}
	if stats := f.store.Stats(); stats.Hits < 2 {
		t.Errorf("expected at least 2 store hits, got %+v", stats)
	}
}

func TestSynthesizeVoiceChangesKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.svc.SynthesizeRequest(ctx, tts.NewRequest("Same text", "af_bella", "en-us", 1), "", "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.SynthesizeRequest(ctx, tts.NewRequest("Same text", "am_adam", "en-us", 1), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if a.OriginalAudio == b.OriginalAudio {
		t.Error("different voices share an audio file")
	}
	if n := f.engine.CallCount(); n != 2 {
		t.Errorf("engine called %d times, want 2", n)
	}
}

func TestSynthesizeExplicitOutput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	entry, err := f.svc.Synthesize(ctx, "Hello world", "", "custom.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if entry.OriginalAudio != "custom.mp3" {
		t.Errorf("OriginalAudio = %s, want custom.mp3", entry.OriginalAudio)
	}
	if !exists(filepath.Join(f.dir, "custom.mp3")) {
		t.Error("custom.mp3 not written")
	}
	if exists(filepath.Join(f.dir, "custom.wav")) {
		t.Error("custom.wav not removed")
	}

	// The key ignores the output path, so the hash-named request hits it.
	again, err := f.svc.Synthesize(ctx, "Hello world", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if again.OriginalAudio != "custom.mp3" {
		t.Errorf("OriginalAudio = %s, want custom.mp3", again.OriginalAudio)
	}
	if n := f.engine.CallCount(); n != 1 {
		t.Errorf("engine called %d times, want 1", n)
	}
}

func TestSynthesizeAbsoluteOutput(t *testing.T) {
	f := newFixture(t, nil)
	out := filepath.Join(t.TempDir(), "scene1", "intro.mp3")

	entry, err := f.svc.Synthesize(context.Background(), "Intro", "", out)
	if err != nil {
		t.Fatal(err)
	}
	if entry.OriginalAudio != out || !exists(out) {
		t.Errorf("expected audio at %s, entry %+v", out, entry)
	}
}

func TestSynthesizeOutputWithoutMP3Suffix(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := f.svc.Synthesize(context.Background(), "No suffix", "", "line1"); err != nil {
		t.Fatal(err)
	}
	if got := f.transcoder.wavs[0]; got != filepath.Join(f.dir, "line1.wav") {
		t.Errorf("wav path = %s", got)
	}
}

func TestSynthesizeKeepWAV(t *testing.T) {
	f := newFixture(t, func(c *tts.Config) { c.KeepWAV = true })

	entry, err := f.svc.Synthesize(context.Background(), "Keep the intermediate file", "", "")
	if err != nil {
		t.Fatal(err)
	}
	wavPath := filepath.Join(f.dir, tts.WAVPath(entry.OriginalAudio))
	pcm, err := audio.ReadWAV(wavPath)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}
	if pcm.SampleRate != mock.SampleRate || pcm.Channels != 1 {
		t.Errorf("unexpected wav format %d Hz, %d channels", pcm.SampleRate, pcm.Channels)
	}

	var peak int16
	for _, s := range pcm.Samples {
		if s > peak {
			peak = s
		}
		if -s > peak {
			peak = -s
		}
	}
	if peak != 32767 {
		t.Errorf("peak = %d, want 32767 after normalization", peak)
	}
}

func TestSynthesizeStripsBookmarks(t *testing.T) {
	f := newFixture(t, nil)
	text := `Look here <bookmark mark="A"/> and there`

	entry, err := f.svc.Synthesize(context.Background(), text, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if got := f.engine.Calls()[0].Text; got != "Look here and there" {
		t.Errorf("engine received %q", got)
	}
	if entry.InputText != text {
		t.Errorf("InputText = %q, want raw text", entry.InputText)
	}
	if entry.OriginalAudio != tts.NewRequest(text, "af_bella", "en-us", 1).Key()+".mp3" {
		t.Error("key not computed from the raw text")
	}
}

func TestSynthesizeConcurrentSameKey(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetDelay(100 * time.Millisecond)

	var wg sync.WaitGroup
	entries := make([]*tts.CacheEntry, 8)
	for i := range entries {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := f.svc.Synthesize(context.Background(), "Everyone at once", "", "")
			if err != nil {
				t.Error(err)
				return
			}
			entries[i] = entry
		}(i)
	}
	wg.Wait()

	if n := f.engine.CallCount(); n != 1 {
		t.Errorf("engine called %d times, want 1", n)
	}
	for _, e := range entries {
		if e != nil && e.OriginalAudio != entries[0].OriginalAudio {
			t.Errorf("divergent entries %s and %s", e.OriginalAudio, entries[0].OriginalAudio)
		}
	}
}

func TestSynthesizeSharedCallerCancels(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetDelay(300 * time.Millisecond)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := f.svc.Synthesize(ctxA, "Shared line", "", "")
		errA <- err
	}()
	waitFor(t, func() bool { return f.engine.CallCount() == 1 })

	type result struct {
		entry *tts.CacheEntry
		err   error
	}
	resB := make(chan result, 1)
	go func() {
		entry, err := f.svc.Synthesize(context.Background(), "Shared line", "", "")
		resB <- result{entry, err}
	}()
	time.Sleep(50 * time.Millisecond)
	cancelA()

	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	b := <-resB
	if b.err != nil {
		t.Fatalf("live caller failed: %v", b.err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, b.entry.OriginalAudio)); err != nil {
		t.Errorf("audio missing for live caller: %v", err)
	}
	if n := f.engine.CallCount(); n != 2 {
		t.Errorf("engine called %d times, want 2", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.svc.Synthesize(ctx, "Too slow", "", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	t.Run("empty text", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.Synthesize(context.Background(), "   ", "", "")
		if !errors.Is(err, tts.ErrEmptyText) || !tts.IsKind(err, tts.KindSynthesis) {
			t.Errorf("expected empty text synthesis error, got %v", err)
		}
		if f.engine.CallCount() != 0 {
			t.Error("engine called for empty text")
		}
	})

	t.Run("only bookmarks", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.Synthesize(context.Background(), `<bookmark mark="A"/>`, "", "")
		if !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("expected ErrEmptyText, got %v", err)
		}
	})

	t.Run("unknown voice", func(t *testing.T) {
		f := newFixture(t, nil)
		f.engine.SetFailure(errors.New("voice af_bela not found"))

		_, err := f.svc.SynthesizeRequest(context.Background(), tts.NewRequest("hi", "af_bela", "en-us", 1), "", "")
		if !tts.IsKind(err, tts.KindSynthesis) {
			t.Fatalf("expected synthesis error, got %v", err)
		}
		var ne *tts.NarrationError
		if !errors.As(err, &ne) || ne.Context["suggestion"] != "af_bella" {
			t.Errorf("expected suggestion af_bella, got %v", err)
		}
		if _, ok, _ := f.store.Get(f.dir, tts.NewRequest("hi", "af_bela", "en-us", 1).Key()); ok {
			t.Error("failed synthesis was cached")
		}
	})

	t.Run("silent output", func(t *testing.T) {
		f := newFixture(t, func(c *tts.Config) { c.KeepWAV = true })
		f.engine.SetSilent(true)
		if _, err := f.svc.Synthesize(context.Background(), "quiet please", "", ""); err != nil {
			t.Errorf("all-zero audio should still be written: %v", err)
		}
	})

	t.Run("transcoder failure", func(t *testing.T) {
		f := newFixture(t, nil)
		f.transcoder.err = errors.New("ffmpeg exited with status 1")

		_, err := f.svc.Synthesize(context.Background(), "won't encode", "", "out.mp3")
		if !tts.IsKind(err, tts.KindIO) {
			t.Fatalf("expected io error, got %v", err)
		}
		if exists(filepath.Join(f.dir, "out.mp3")) || exists(filepath.Join(f.dir, "out.wav")) {
			t.Error("partial files left behind")
		}
		if exists(filepath.Join(f.dir, cache.IndexFile)) {
			t.Error("failed narration recorded in the index")
		}
	})

	t.Run("cache dir is a file", func(t *testing.T) {
		f := newFixture(t, nil)
		file := filepath.Join(t.TempDir(), "not-a-dir")
		if err := os.WriteFile(file, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := f.svc.Synthesize(context.Background(), "hi", file, "")
		if !tts.IsKind(err, tts.KindConfiguration) {
			t.Errorf("expected configuration error, got %v", err)
		}
	})
}

func TestNewServiceErrors(t *testing.T) {
	ok := mock.New()
	deps := func() tts.Dependencies {
		return tts.Dependencies{
			Provisioner: &fakeProvisioner{},
			NewEngine:   ok.Factory(),
			Transcoder:  &fakeTranscoder{},
			Store:       cache.NewMemoryStore(),
		}
	}

	tests := []struct {
		name   string
		cfg    func(*tts.Config)
		deps   func(*tts.Dependencies)
		kind   tts.ErrorKind
		target error
	}{
		{
			name:   "download fails",
			deps:   func(d *tts.Dependencies) { d.Provisioner = &fakeProvisioner{err: tts.ErrAssetDownload} },
			kind:   tts.KindAssetProvisioning,
			target: tts.ErrAssetDownload,
		},
		{
			name: "engine cannot load model",
			deps: func(d *tts.Dependencies) {
				d.NewEngine = func(context.Context, tts.ModelAssetPair) (tts.Engine, error) {
					return nil, errors.New("onnxruntime: invalid model")
				}
			},
			kind: tts.KindAssetProvisioning,
		},
		{
			name:   "speed out of range",
			cfg:    func(c *tts.Config) { c.Speed = 5 },
			kind:   tts.KindConfiguration,
			target: tts.ErrInvalidConfig,
		},
		{
			name:   "missing store",
			deps:   func(d *tts.Dependencies) { d.Store = nil },
			kind:   tts.KindConfiguration,
			target: tts.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tts.DefaultConfig()
			cfg.CacheDir = t.TempDir()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			d := deps()
			if tt.deps != nil {
				tt.deps(&d)
			}

			svc, err := tts.NewService(context.Background(), cfg, d)
			if err == nil {
				svc.Close()
				t.Fatal("expected error")
			}
			if !tts.IsKind(err, tt.kind) {
				t.Errorf("kind = %v, want %v (%v)", tts.KindOf(err), tt.kind, err)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected %v in chain, got %v", tt.target, err)
			}
		})
	}
}

func TestNewServiceWithoutProvisioner(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.CacheDir = t.TempDir()
	cfg.Models.Dir = "/models"

	var got tts.ModelAssetPair
	svc, err := tts.NewService(context.Background(), cfg, tts.Dependencies{
		NewEngine: func(_ context.Context, assets tts.ModelAssetPair) (tts.Engine, error) {
			got = assets
			return mock.New(), nil
		},
		Transcoder: &fakeTranscoder{},
		Store:      cache.NewMemoryStore(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	want := tts.ModelAssetPair{
		ModelPath:  filepath.Join("/models", tts.DefaultModelFile),
		VoicesPath: filepath.Join("/models", tts.DefaultVoicesFile),
	}
	if got != want || svc.Assets() != want {
		t.Errorf("engine built from %+v, want %+v", got, want)
	}
}

func TestServiceClose(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.svc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	if !f.engine.Closed() {
		t.Error("engine not closed")
	}
	if _, err := f.svc.Synthesize(context.Background(), "after close", "", ""); !errors.Is(err, tts.ErrEngineShutdown) {
		t.Errorf("expected ErrEngineShutdown, got %v", err)
	}
}

func TestWAVPath(t *testing.T) {
	tests := map[string]string{
		"abc.mp3":        "abc.wav",
		"custom.mp3":     "custom.wav",
		"dir/line.mp3":   "dir/line.wav",
		"line1":          "line1.wav",
		"archive.mp3.gz": "archive.mp3.gz.wav",
	}
	for in, want := range tests {
		if got := tts.WAVPath(in); got != want {
			t.Errorf("WAVPath(%q) = %q, want %q", in, got, want)
		}
	}
}
