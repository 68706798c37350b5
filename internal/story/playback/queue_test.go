package playback_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"storyvoice/internal/story/playback"
	"storyvoice/internal/story/playback/playbacktest"
)

type queueRecorder struct {
	mu        sync.Mutex
	starts    []uint64
	errs      []error
	ends      int
	lastEnded uint64
	ended     chan struct{}
}

func newQueueRecorder() *queueRecorder {
	return &queueRecorder{ended: make(chan struct{}, 16)}
}

func (r *queueRecorder) options() playback.QueueOptions {
	return playback.QueueOptions{
		Volume: 0.7,
		OnStart: func(id uint64) {
			r.mu.Lock()
			r.starts = append(r.starts, id)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnEnd: func(lastID uint64) {
			r.mu.Lock()
			r.ends++
			r.lastEnded = lastID
			r.mu.Unlock()
			r.ended <- struct{}{}
		},
	}
}

func (r *queueRecorder) waitEnd(t *testing.T) {
	t.Helper()
	select {
	case <-r.ended:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain")
	}
}

func (r *queueRecorder) startOrder() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.starts...)
}

func (r *queueRecorder) failures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func TestQueuePlaysInOrder(t *testing.T) {
	env := playbacktest.NewEnv()
	rec := newQueueRecorder()
	q := playback.NewQueue(env.Orchestrator(0, 0), rec.options())

	ids := []uint64{
		q.Enqueue(playbacktest.Audio(playbacktest.OK)),
		q.Enqueue(playbacktest.Audio(playbacktest.OK)),
		q.Enqueue(playbacktest.Audio(playbacktest.OK)),
	}
	rec.waitEnd(t)

	got := rec.startOrder()
	if len(got) != len(ids) {
		t.Fatalf("starts = %v, want %v", got, ids)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Errorf("start %d = %d, want %d", i, got[i], ids[i])
		}
	}
	if env.Meter.MaxAudible() != 1 {
		t.Errorf("max audible = %d, want 1", env.Meter.MaxAudible())
	}
	if status := q.Status(); status != (playback.QueueStatus{}) {
		t.Errorf("Status() = %+v, want idle", status)
	}
}

func TestQueueReportsLastItemOnDrain(t *testing.T) {
	env := playbacktest.NewEnv()
	rec := newQueueRecorder()
	q := playback.NewQueue(env.Orchestrator(0, 0), rec.options())

	q.Enqueue(playbacktest.Audio(playbacktest.Hold))
	last := q.Enqueue(playbacktest.Audio(playbacktest.OK))

	deadline := time.Now().Add(2 * time.Second)
	for env.Meter.Started() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if env.Meter.Started() == 0 {
		t.Fatal("first item never started")
	}
	env.Media.Last().Finish()
	rec.waitEnd(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.ends != 1 || rec.lastEnded != last {
		t.Errorf("drained %d times with last id %d, want once with %d", rec.ends, rec.lastEnded, last)
	}
}

func TestQueueSkipsFailedItem(t *testing.T) {
	env := playbacktest.NewEnv()
	rec := newQueueRecorder()
	q := playback.NewQueue(env.Orchestrator(0, 0), rec.options())

	q.Enqueue(playbacktest.Audio(playbacktest.OK))
	bad := q.Enqueue(playbacktest.Audio(playbacktest.FailAll))
	q.Enqueue(playbacktest.Audio(playbacktest.OK))
	rec.waitEnd(t)

	errs := rec.failures()
	if len(errs) != 1 {
		t.Fatalf("OnError fired %d times, want 1: %v", len(errs), errs)
	}
	var itemErr *playback.QueueItemError
	if !errors.As(errs[0], &itemErr) || itemErr.ID != bad {
		t.Errorf("error = %v, want QueueItemError for item %d", errs[0], bad)
	}
	var fallbackErr *playback.FallbackError
	if !errors.As(errs[0], &fallbackErr) {
		t.Errorf("error = %v, want a wrapped FallbackError", errs[0])
	}
	if env.Meter.Started() != 2 {
		t.Errorf("audible outputs = %d, want 2", env.Meter.Started())
	}
	want := playback.QueueStatus{IsPlaying: false, QueueLength: 0, IsPaused: false}
	if status := q.Status(); status != want {
		t.Errorf("Status() = %+v, want %+v", status, want)
	}
	if env.Blobs.Live() != 0 || env.Graph.Live() != 0 {
		t.Errorf("resources leaked: blobs=%d contexts=%d", env.Blobs.Live(), env.Graph.Live())
	}
}

func TestQueueStop(t *testing.T) {
	env := playbacktest.NewEnv()
	rec := newQueueRecorder()
	q := playback.NewQueue(env.Orchestrator(0, 0), rec.options())

	q.Enqueue(playbacktest.Audio(playbacktest.Hold))
	q.Enqueue(playbacktest.Audio(playbacktest.OK))
	q.Enqueue(playbacktest.Audio(playbacktest.OK))
	waitFor(t, "first item", func() bool { return env.Meter.Audible() == 1 })

	if status := q.Status(); !status.IsPlaying || status.QueueLength != 2 {
		t.Errorf("Status() = %+v, want playing with 2 pending", status)
	}

	q.Stop()
	q.Stop()

	if status := q.Status(); status != (playback.QueueStatus{}) {
		t.Errorf("Status() = %+v, want idle", status)
	}
	if env.Meter.Audible() != 0 {
		t.Errorf("audible = %d after Stop", env.Meter.Audible())
	}
	if len(rec.failures()) != 0 {
		t.Errorf("Stop must not report errors: %v", rec.failures())
	}

	// the queue is reusable after Stop
	q.Enqueue(playbacktest.Audio(playbacktest.OK))
	rec.waitEnd(t)
	if env.Meter.Started() != 2 {
		t.Errorf("audible outputs = %d, want 2", env.Meter.Started())
	}
	if env.Meter.MaxAudible() != 1 {
		t.Errorf("max audible = %d, want 1", env.Meter.MaxAudible())
	}
}

func TestQueuePauseResume(t *testing.T) {
	env := playbacktest.NewEnv()
	rec := newQueueRecorder()
	q := playback.NewQueue(env.Orchestrator(0, 0), rec.options())

	q.Enqueue(playbacktest.Audio(playbacktest.Hold))
	waitFor(t, "first item", func() bool { return env.Meter.Audible() == 1 })

	if err := q.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if status := q.Status(); !status.IsPaused {
		t.Errorf("Status() = %+v, want paused", status)
	}
	if err := q.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if status := q.Status(); status.IsPaused {
		t.Errorf("Status() = %+v, want resumed", status)
	}

	env.Media.Last().Finish()
	rec.waitEnd(t)
}

func TestQueueGraphCannotPause(t *testing.T) {
	env := playbacktest.NewEnv()
	rec := newQueueRecorder()
	opts := rec.options()
	opts.ForceGraph = true
	q := playback.NewQueue(env.Orchestrator(0, 0), opts)

	q.Enqueue(playbacktest.Audio(playbacktest.Hold))
	waitFor(t, "first item", func() bool { return env.Meter.Audible() == 1 })

	if err := q.Pause(); !errors.Is(err, playback.ErrNotPausable) {
		t.Errorf("Pause() error = %v, want ErrNotPausable", err)
	}
	q.Stop()
}

func TestQueueVolume(t *testing.T) {
	env := playbacktest.NewEnv()
	rec := newQueueRecorder()
	q := playback.NewQueue(env.Orchestrator(0, 0), rec.options())

	q.Enqueue(playbacktest.Audio(playbacktest.Hold))
	waitFor(t, "first item", func() bool { return env.Meter.Audible() == 1 })
	first := env.Media.Last()
	if first.Volume() != 0.7 {
		t.Errorf("initial volume = %v, want 0.7", first.Volume())
	}

	q.SetVolume(0.2)
	if first.Volume() != 0.2 {
		t.Errorf("current item volume = %v, want 0.2", first.Volume())
	}

	q.Enqueue(playbacktest.Audio(playbacktest.Hold))
	first.Finish()
	waitFor(t, "second item", func() bool { return len(env.Media.Elements()) == 2 && env.Meter.Audible() == 1 })
	if got := env.Media.Last().Volume(); got != 0.2 {
		t.Errorf("next item volume = %v, want 0.2", got)
	}
	q.Stop()
}
