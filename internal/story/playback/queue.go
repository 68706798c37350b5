package playback

import (
	"container/list"
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// QueueOptions configures a Queue.
type QueueOptions struct {
	Volume     float64
	ForceGraph bool

	// OnStart fires when an item begins playing.
	OnStart func(id uint64)
	// OnError fires once per failed item with a *QueueItemError.
	OnError func(err error)
	// OnEnd fires when the queue drains, with the id of the last item played.
	OnEnd func(lastID uint64)
}

// QueueStatus is a snapshot of the queue.
type QueueStatus struct {
	IsPlaying   bool `json:"isPlaying"`
	QueueLength int  `json:"queueLength"`
	IsPaused    bool `json:"isPaused"`
}

type queueItem struct {
	id    uint64
	audio GeneratedAudio
}

// Queue plays payloads one at a time in insertion order. A failed item is
// reported and skipped.
type Queue struct {
	player *Orchestrator
	opts   QueueOptions

	// attempt serializes calls into the orchestrator across drain generations.
	attempt sync.Mutex

	mu      sync.Mutex
	items   *list.List
	playing bool
	current *Handle
	volume  float64
	gen     uint64
	cancel  context.CancelFunc
	nextID  uint64
}

// NewQueue creates an idle queue on top of player.
func NewQueue(player *Orchestrator, opts QueueOptions) *Queue {
	return &Queue{
		player: player,
		opts:   opts,
		items:  list.New(),
		volume: ClampVolume(opts.Volume),
	}
}

// Enqueue appends audio and starts draining if the queue was idle.
func (q *Queue) Enqueue(audio GeneratedAudio) uint64 {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.items.PushBack(queueItem{id: id, audio: audio})

	start := !q.playing
	var ctx context.Context
	if start {
		q.playing = true
		ctx, q.cancel = context.WithCancel(context.Background())
	}
	gen := q.gen
	length := q.items.Len()
	q.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"id":           id,
		"queue_length": length,
	}).Debug("Audio enqueued")

	if start {
		go q.drain(ctx, gen)
	}
	return id
}

func (q *Queue) drain(ctx context.Context, gen uint64) {
	var last uint64
	for {
		item, ok := q.next(gen, last)
		if !ok {
			return
		}
		q.playItem(ctx, gen, item)
		last = item.id
	}
}

// next pops the head item. An empty queue ends the drain.
func (q *Queue) next(gen, last uint64) (queueItem, bool) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		return queueItem{}, false
	}

	front := q.items.Front()
	if front == nil {
		q.playing = false
		q.current = nil
		if q.cancel != nil {
			q.cancel()
			q.cancel = nil
		}
		q.mu.Unlock()

		logrus.Debug("Audio queue drained")
		if q.opts.OnEnd != nil {
			q.opts.OnEnd(last)
		}
		return queueItem{}, false
	}

	q.items.Remove(front)
	q.mu.Unlock()
	return front.Value.(queueItem), true
}

func (q *Queue) playItem(ctx context.Context, gen uint64, item queueItem) {
	outcome := make(chan error, 1)
	var once sync.Once
	settle := func(err error) {
		once.Do(func() { outcome <- err })
	}

	q.mu.Lock()
	volume := q.volume
	q.mu.Unlock()

	opts := Options{
		Volume:     Volume(volume),
		ForceGraph: q.opts.ForceGraph,
		Callbacks: Callbacks{
			OnStart: func() {
				if q.isGen(gen) && q.opts.OnStart != nil {
					q.opts.OnStart(item.id)
				}
			},
			OnEnd:   func() { settle(nil) },
			OnError: func(err error) { settle(err) },
			OnStop:  func() { settle(ErrStopped) },
		},
	}

	q.attempt.Lock()
	if !q.isGen(gen) {
		q.attempt.Unlock()
		return
	}
	h, err := q.player.Play(ctx, item.audio, opts)
	q.attempt.Unlock()

	if err != nil {
		settle(err)
	} else {
		q.mu.Lock()
		if gen != q.gen {
			q.mu.Unlock()
			h.Stop()
			return
		}
		q.current = h
		q.mu.Unlock()

		if err := h.Play(); err != nil {
			settle(err)
		}
	}

	err = <-outcome

	q.mu.Lock()
	if h != nil && q.current == h {
		q.current = nil
	}
	stale := gen != q.gen
	q.mu.Unlock()

	if err == nil || stale || errors.Is(err, ErrStopped) {
		return
	}
	itemErr := &QueueItemError{ID: item.id, Err: err}
	logrus.WithError(err).WithField("id", item.id).Warn("Queued audio failed, continuing")
	if q.opts.OnError != nil {
		q.opts.OnError(itemErr)
	}
}

func (q *Queue) isGen(gen uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return gen == q.gen
}

// Stop clears pending items and halts the current one. The queue stays usable.
func (q *Queue) Stop() {
	q.mu.Lock()
	cleared := q.items.Len()
	q.items.Init()
	q.gen++
	q.playing = false
	q.current = nil
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.player.Stop()

	logrus.WithField("cleared", cleared).Debug("Audio queue stopped")
}

// Pause pauses the current item. Graph playback returns ErrNotPausable.
func (q *Queue) Pause() error {
	if h := q.currentHandle(); h != nil {
		return h.Pause()
	}
	return nil
}

// Resume resumes the current item.
func (q *Queue) Resume() error {
	if h := q.currentHandle(); h != nil {
		return h.Resume()
	}
	return nil
}

// SetVolume applies v to the current item and every later one.
func (q *Queue) SetVolume(v float64) {
	q.mu.Lock()
	q.volume = ClampVolume(v)
	h := q.current
	q.mu.Unlock()

	if h != nil {
		h.SetVolume(v)
	}
}

// Volume returns the volume applied to queued items.
func (q *Queue) Volume() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.volume
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	status := QueueStatus{
		IsPlaying:   q.playing,
		QueueLength: q.items.Len(),
	}
	h := q.current
	q.mu.Unlock()

	if h != nil {
		status.IsPaused = h.IsPaused()
	}
	return status
}

func (q *Queue) currentHandle() *Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}
