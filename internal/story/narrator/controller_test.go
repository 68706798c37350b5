package narrator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"storyvoice/internal/story/narrator"
	"storyvoice/internal/story/playback"
	"storyvoice/internal/story/playback/playbacktest"
)

// fakeSpeech maps narration text onto fake payload behaviors.
type fakeSpeech struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	behavior := playbacktest.OK
	switch {
	case strings.HasPrefix(text, "hold"):
		behavior = playbacktest.Hold
	case strings.HasPrefix(text, "broken"):
		behavior = playbacktest.FailAll
	}
	audio := playbacktest.Audio(behavior)
	return &audio, nil
}

func (f *fakeSpeech) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newController(env *playbacktest.Env, speech narrator.SpeechService, policy narrator.Policy) *narrator.Controller {
	return narrator.New(speech, env.Orchestrator(0, 0), narrator.Options{Volume: 0.7, Policy: policy})
}

func TestGenerateAndPlay(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{}, narrator.PolicyReplace)
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "You wake in a ruined mall.")
	waitFor(t, "narration to finish", func() bool {
		return env.Meter.Started() == 1 && !c.State().IsPlaying && !c.State().IsLoading
	})

	if st := c.State(); st.Error != "" {
		t.Errorf("Error = %q, want empty", st.Error)
	}
	if env.Blobs.Live() != 0 {
		t.Errorf("blobs live = %d, want 0", env.Blobs.Live())
	}
}

func TestGenerateAndPlayEmptyText(t *testing.T) {
	env := playbacktest.NewEnv()
	speech := &fakeSpeech{}
	c := newController(env, speech, narrator.PolicyReplace)
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "   ")

	st := c.State()
	if st.Error != "text is required" || st.IsLoading {
		t.Errorf("state = %+v, want text is required error", st)
	}
	if speech.callCount() != 0 {
		t.Error("speech service must not be called for blank text")
	}
}

func TestGenerateAndPlaySynthesisFailure(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{err: errors.New("quota exceeded")}, narrator.PolicyReplace)
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "Run!")

	st := c.State()
	if st.IsLoading || st.IsPlaying {
		t.Errorf("state = %+v, want idle", st)
	}
	if !strings.Contains(st.Error, "quota exceeded") {
		t.Errorf("Error = %q, want the synthesis failure", st.Error)
	}
}

func TestPlaybackFailureBecomesState(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{}, narrator.PolicyReplace)
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "broken narration")
	waitFor(t, "failure state", func() bool { return c.State().Error != "" })

	st := c.State()
	if !strings.Contains(st.Error, "both declarative and graph playback failed") {
		t.Errorf("Error = %q, want the composed fallback error", st.Error)
	}
	if st.IsPlaying || st.IsLoading {
		t.Errorf("state = %+v, want idle", st)
	}
}

func TestNewNarrationSupersedesPrevious(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{}, narrator.PolicyReplace)
	defer c.Close()

	var mu sync.Mutex
	var states []narrator.State
	c.Subscribe(func(st narrator.State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	c.GenerateAndPlay(context.Background(), "hold the first turn")
	waitFor(t, "first narration", func() bool { return c.State().IsPlaying })
	first := env.Media.Last()

	c.GenerateAndPlay(context.Background(), "hold the second turn")
	waitFor(t, "second narration", func() bool {
		return c.State().IsPlaying && len(env.Media.Elements()) == 2
	})

	if !first.Closed() {
		t.Error("previous narration was not released")
	}
	if env.Meter.MaxAudible() != 1 {
		t.Errorf("max audible = %d, want 1", env.Meter.MaxAudible())
	}

	// playing, then a stop before the next load, then playing again
	mu.Lock()
	defer mu.Unlock()
	phase := 0
	for _, st := range states {
		switch {
		case phase == 0 && st.IsPlaying:
			phase = 1
		case phase == 1 && !st.IsPlaying && !st.IsLoading:
			phase = 2
		case phase == 2 && st.IsLoading:
			phase = 3
		case phase == 3 && st.IsPlaying:
			phase = 4
		}
	}
	if phase != 4 {
		t.Errorf("state sequence reached phase %d, want 4: %+v", phase, states)
	}
}

func TestAppendPolicyQueues(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{}, narrator.PolicyAppend)
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "hold the first turn")
	waitFor(t, "first narration", func() bool { return c.State().IsPlaying })
	c.GenerateAndPlay(context.Background(), "then the second")

	if status := c.QueueStatus(); status.QueueLength != 1 {
		t.Errorf("queue length = %d, want 1", status.QueueLength)
	}
	env.Media.Last().Finish()
	waitFor(t, "queue to drain", func() bool {
		return env.Meter.Started() == 2 && !c.State().IsPlaying
	})
	if env.Meter.MaxAudible() != 1 {
		t.Errorf("max audible = %d, want 1", env.Meter.MaxAudible())
	}
}

func TestStopIdempotent(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{}, narrator.PolicyReplace)
	defer c.Close()

	c.Stop()
	c.GenerateAndPlay(context.Background(), "hold on")
	waitFor(t, "narration", func() bool { return c.State().IsPlaying })

	c.Stop()
	c.Stop()

	st := c.State()
	if st.IsPlaying || st.IsLoading {
		t.Errorf("state = %+v, want stopped", st)
	}
	if status := c.QueueStatus(); status != (playback.QueueStatus{}) {
		t.Errorf("queue status = %+v, want idle", status)
	}
	if env.Meter.Audible() != 0 || env.Blobs.Live() != 0 {
		t.Errorf("resources leaked: audible=%d blobs=%d", env.Meter.Audible(), env.Blobs.Live())
	}
}

func TestMuteRoundTrip(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{}, narrator.PolicyReplace)
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "hold while muting")
	waitFor(t, "narration", func() bool { return c.State().IsPlaying })
	el := env.Media.Last()

	c.SetVolume(0.7)
	c.ToggleMute()
	if st := c.State(); st.Volume != 0 || !st.IsMuted {
		t.Fatalf("state = %+v, want muted", st)
	}
	if el.Volume() != 0 {
		t.Errorf("element volume = %v, want 0", el.Volume())
	}

	c.ToggleMute()
	if st := c.State(); st.Volume != 0.7 || st.IsMuted {
		t.Errorf("state = %+v, want volume 0.7 restored", st)
	}
	if el.Volume() != 0.7 {
		t.Errorf("element volume = %v, want 0.7", el.Volume())
	}
}

func TestPauseResume(t *testing.T) {
	env := playbacktest.NewEnv()
	c := newController(env, &fakeSpeech{}, narrator.PolicyReplace)
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "hold for pause")
	waitFor(t, "narration", func() bool { return c.State().IsPlaying })

	c.Pause()
	if st := c.State(); !st.IsPaused || st.IsPlaying {
		t.Errorf("state = %+v, want paused", st)
	}
	c.Resume()
	if st := c.State(); st.IsPaused || !st.IsPlaying {
		t.Errorf("state = %+v, want playing", st)
	}
}

func TestCloseStopsOnce(t *testing.T) {
	env := playbacktest.NewEnv()
	speech := &fakeSpeech{}
	c := newController(env, speech, narrator.PolicyReplace)

	var mu sync.Mutex
	stops := 0
	c.Subscribe(func(st narrator.State) {
		if !st.IsPlaying && !st.IsLoading {
			mu.Lock()
			stops++
			mu.Unlock()
		}
	})

	c.GenerateAndPlay(context.Background(), "hold until teardown")
	waitFor(t, "narration", func() bool { return c.State().IsPlaying })
	mu.Lock()
	stops = 0
	mu.Unlock()

	c.Close()
	c.Close()

	mu.Lock()
	if stops != 1 {
		t.Errorf("teardown notified %d stops, want 1", stops)
	}
	mu.Unlock()

	if env.Meter.Audible() != 0 || env.Blobs.Live() != 0 {
		t.Errorf("resources leaked: audible=%d blobs=%d", env.Meter.Audible(), env.Blobs.Live())
	}

	before := c.State()
	c.GenerateAndPlay(context.Background(), "after teardown")
	c.SetVolume(0.1)
	if speech.callCount() != 1 {
		t.Errorf("speech calls = %d, want 1", speech.callCount())
	}
	if c.State() != before {
		t.Errorf("state changed after teardown: %+v -> %+v", before, c.State())
	}
}
