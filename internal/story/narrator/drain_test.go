package narrator

import (
	"context"
	"testing"
	"time"

	"storyvoice/internal/story/playback"
	"storyvoice/internal/story/playback/playbacktest"
)

type holdSpeech struct{}

func (holdSpeech) Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error) {
	audio := playbacktest.Audio(playbacktest.Hold)
	return &audio, nil
}

func eventually(t *testing.T, what string, cond func() bool) {
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

func TestStaleDrainKeepsNewNarrationPlaying(t *testing.T) {
	for _, policy := range []Policy{PolicyReplace, PolicyAppend} {
		t.Run(string(policy), func(t *testing.T) {
			env := playbacktest.NewEnv()
			c := New(holdSpeech{}, env.Orchestrator(0, 0), Options{Volume: 0.7, Policy: policy})
			defer c.Close()

			c.GenerateAndPlay(context.Background(), "first turn")
			eventually(t, "first narration", func() bool { return c.State().IsPlaying })

			c.mu.Lock()
			first := c.lastItem
			c.mu.Unlock()

			c.GenerateAndPlay(context.Background(), "second turn")
			if policy == PolicyReplace {
				eventually(t, "second narration", func() bool {
					return c.State().IsPlaying && env.Meter.Started() == 2
				})
			}

			// the drain of the first turn lands after the second was handed over
			c.onDrained(first)

			if st := c.State(); !st.IsPlaying {
				t.Errorf("state = %+v, want the newer narration still playing", st)
			}
		})
	}
}

func TestDrainOfNewestItemEndsNarration(t *testing.T) {
	env := playbacktest.NewEnv()
	c := New(holdSpeech{}, env.Orchestrator(0, 0), Options{Volume: 0.7})
	defer c.Close()

	c.GenerateAndPlay(context.Background(), "only turn")
	eventually(t, "narration", func() bool { return c.State().IsPlaying })

	c.mu.Lock()
	last := c.lastItem
	c.mu.Unlock()

	c.onDrained(last)
	if st := c.State(); st.IsPlaying {
		t.Errorf("state = %+v, want ended", st)
	}
}
