package narrator

import (
	"errors"
	"testing"
)

func TestReduceMuteRoundTrip(t *testing.T) {
	m := model{}
	m = reduce(m, Event{Kind: EventVolume, Volume: 0.7})
	m = reduce(m, Event{Kind: EventMute})
	if m.Volume != 0 || !m.IsMuted {
		t.Fatalf("after mute volume=%v muted=%v, want 0 true", m.Volume, m.IsMuted)
	}
	m = reduce(m, Event{Kind: EventMute})
	if m.Volume != 0.7 || m.IsMuted {
		t.Errorf("after unmute volume=%v muted=%v, want 0.7 false", m.Volume, m.IsMuted)
	}
}

func TestReduceUnmuteWithoutMemory(t *testing.T) {
	m := reduce(model{}, Event{Kind: EventVolume, Volume: 0})
	if !m.IsMuted {
		t.Fatal("zero volume should read as muted")
	}
	m = reduce(m, Event{Kind: EventMute})
	if m.Volume != DefaultVolume {
		t.Errorf("volume = %v, want default %v", m.Volume, DefaultVolume)
	}
}

func TestReduceSetVolumeWhileMuted(t *testing.T) {
	m := reduce(model{}, Event{Kind: EventVolume, Volume: 0.5})
	m = reduce(m, Event{Kind: EventMute})
	m = reduce(m, Event{Kind: EventVolume, Volume: 0.9})
	if m.IsMuted || m.Volume != 0.9 {
		t.Fatalf("volume=%v muted=%v, want 0.9 unmuted", m.Volume, m.IsMuted)
	}
	// the next mute remembers the new volume
	m = reduce(m, Event{Kind: EventMute})
	m = reduce(m, Event{Kind: EventMute})
	if m.Volume != 0.9 {
		t.Errorf("volume = %v, want 0.9", m.Volume)
	}
}

func TestReduceClampsVolume(t *testing.T) {
	if m := reduce(model{}, Event{Kind: EventVolume, Volume: 4}); m.Volume != 1 {
		t.Errorf("volume = %v, want 1", m.Volume)
	}
	if m := reduce(model{}, Event{Kind: EventVolume, Volume: -1}); m.Volume != 0 {
		t.Errorf("volume = %v, want 0", m.Volume)
	}
}

func TestReduceDropsStaleEvents(t *testing.T) {
	m := reduce(model{}, Event{Kind: EventStopped, Gen: 2})
	m = reduce(m, Event{Kind: EventStarted, Gen: 1})
	if m.IsPlaying {
		t.Error("a started event from a superseded generation must be ignored")
	}
	m = reduce(m, Event{Kind: EventFailed, Gen: 1, Err: errors.New("late")})
	if m.Error != "" {
		t.Errorf("Error = %q, want empty", m.Error)
	}
	m = reduce(m, Event{Kind: EventStarted, Gen: 2})
	if !m.IsPlaying {
		t.Error("current generation should start playing")
	}
}

func TestReduceLifecycle(t *testing.T) {
	steps := []struct {
		ev   Event
		want State
	}{
		{Event{Kind: EventLoading}, State{IsLoading: true}},
		{Event{Kind: EventQueued}, State{IsLoading: true}},
		{Event{Kind: EventStarted}, State{IsPlaying: true}},
		{Event{Kind: EventPaused}, State{IsPaused: true}},
		{Event{Kind: EventResumed}, State{IsPlaying: true}},
		{Event{Kind: EventEnded}, State{}},
		{Event{Kind: EventLoading}, State{IsLoading: true}},
		{Event{Kind: EventFailed, Err: errors.New("boom")}, State{Error: "boom"}},
		{Event{Kind: EventLoading}, State{IsLoading: true}},
		{Event{Kind: EventStopped}, State{}},
	}

	m := model{}
	for i, step := range steps {
		m = reduce(m, step.ev)
		if m.State != step.want {
			t.Errorf("step %d (%v): state = %+v, want %+v", i, step.ev.Kind, m.State, step.want)
		}
	}
}
