package narrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"storyvoice/internal/story/playback"
)

// ErrEmptyText is recorded when narration is requested for blank text.
var ErrEmptyText = errors.New("text is required")

// SpeechService turns narration text into an audio payload.
type SpeechService interface {
	Synthesize(ctx context.Context, text string) (*playback.GeneratedAudio, error)
}

// Policy decides what happens to narration still playing when a new one arrives.
type Policy string

const (
	// PolicyReplace stops the current narration first.
	PolicyReplace Policy = "replace"
	// PolicyAppend queues the new narration behind the current one.
	PolicyAppend Policy = "append"
)

// Options configures a Controller.
type Options struct {
	Volume     float64
	Policy     Policy
	ForceGraph bool
}

// Controller is the stateful facade the turn loop and UI talk to. Failures
// are recorded in State rather than returned.
type Controller struct {
	speech SpeechService
	queue  *playback.Queue
	policy Policy

	mu        sync.Mutex
	model     model
	gen       uint64
	items     map[uint64]uint64 // queue item id -> generation
	lastItem  uint64
	closed    bool
	listeners []func(State)

	closeOnce sync.Once
}

// New creates a controller that plays through player.
func New(speech SpeechService, player *playback.Orchestrator, opts Options) *Controller {
	policy := opts.Policy
	if policy == "" {
		policy = PolicyReplace
	}

	c := &Controller{
		speech: speech,
		policy: policy,
		items:  make(map[uint64]uint64),
	}
	c.model.Volume = playback.ClampVolume(opts.Volume)
	c.model.IsMuted = c.model.Volume == 0

	c.queue = playback.NewQueue(player, playback.QueueOptions{
		Volume:     c.model.Volume,
		ForceGraph: opts.ForceGraph,
		OnStart:    c.onItemStart,
		OnError:    c.onItemError,
		OnEnd:      c.onDrained,
	})
	return c
}

// GenerateAndPlay synthesizes text and plays it. Under PolicyReplace the
// current narration is stopped before synthesis begins.
func (c *Controller) GenerateAndPlay(ctx context.Context, text string) {
	if c.isClosed() {
		return
	}
	if c.policy == PolicyReplace {
		c.Stop()
	}

	gen := c.generation()
	c.dispatch(Event{Kind: EventLoading, Gen: gen})

	if strings.TrimSpace(text) == "" {
		c.dispatch(Event{Kind: EventFailed, Gen: gen, Err: ErrEmptyText})
		return
	}

	logrus.WithField("chars", len(text)).Info("Generating narration")
	audio, err := c.speech.Synthesize(ctx, text)
	if err != nil {
		logrus.WithError(err).Error("Failed to generate narration audio")
		c.dispatch(Event{Kind: EventFailed, Gen: gen, Err: fmt.Errorf("failed to generate audio: %w", err)})
		return
	}

	c.enqueue(gen, *audio)
}

// Play narrates an already synthesized payload under the same policy.
func (c *Controller) Play(audio playback.GeneratedAudio) {
	if c.isClosed() {
		return
	}
	if c.policy == PolicyReplace {
		c.Stop()
	}
	gen := c.generation()
	c.dispatch(Event{Kind: EventLoading, Gen: gen})
	c.enqueue(gen, audio)
}

func (c *Controller) enqueue(gen uint64, audio playback.GeneratedAudio) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		logrus.Debug("Narration superseded before playback")
		return
	}
	id := c.queue.Enqueue(audio)
	c.items[id] = gen
	c.lastItem = id
	c.mu.Unlock()

	c.dispatch(Event{Kind: EventQueued, Gen: gen})
}

// Stop halts narration and discards anything queued. Safe to call at any time.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.items = make(map[uint64]uint64)
	c.mu.Unlock()

	c.queue.Stop()
	c.dispatch(Event{Kind: EventStopped, Gen: gen})
}

// Pause pauses the current narration. Graph playback cannot pause; the
// failure is logged and the state left unchanged.
func (c *Controller) Pause() {
	if err := c.queue.Pause(); err != nil {
		logrus.WithError(err).Warn("Failed to pause narration")
		return
	}
	if c.queue.Status().IsPaused {
		c.dispatch(Event{Kind: EventPaused, Gen: c.generation()})
	}
}

// Resume continues paused narration.
func (c *Controller) Resume() {
	if !c.queue.Status().IsPaused {
		return
	}
	if err := c.queue.Resume(); err != nil {
		logrus.WithError(err).Warn("Failed to resume narration")
		return
	}
	c.dispatch(Event{Kind: EventResumed, Gen: c.generation()})
}

// SetVolume clamps v and applies it to current and future narration.
func (c *Controller) SetVolume(v float64) {
	st := c.dispatch(Event{Kind: EventVolume, Volume: v})
	c.queue.SetVolume(st.Volume)
}

// ToggleMute mutes, or restores the volume in effect before the last mute.
func (c *Controller) ToggleMute() {
	st := c.dispatch(Event{Kind: EventMute})
	c.queue.SetVolume(st.Volume)
}

// State returns a snapshot of the narration state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.State
}

// QueueStatus reports the underlying queue.
func (c *Controller) QueueStatus() playback.QueueStatus {
	return c.queue.Status()
}

// Subscribe registers fn to receive every state change.
func (c *Controller) Subscribe(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Close stops narration once. Later calls and late playback events are ignored.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.Stop()

		c.mu.Lock()
		c.closed = true
		c.listeners = nil
		c.mu.Unlock()

		logrus.Debug("Narrator closed")
	})
}

func (c *Controller) onItemStart(id uint64) {
	if gen, ok := c.itemGen(id); ok {
		c.dispatch(Event{Kind: EventStarted, Gen: gen})
	}
}

func (c *Controller) onItemError(err error) {
	var itemErr *playback.QueueItemError
	if !errors.As(err, &itemErr) {
		return
	}
	if gen, ok := c.itemGen(itemErr.ID); ok {
		c.dispatch(Event{Kind: EventFailed, Gen: gen, Err: itemErr.Err})
	}
}

// onDrained ends narration only when the drain finished the newest item. A
// drain that raced a stop or a later enqueue is stale.
func (c *Controller) onDrained(lastID uint64) {
	c.mu.Lock()
	gen, ok := c.items[lastID]
	current := ok && lastID == c.lastItem
	c.mu.Unlock()

	if !current {
		logrus.WithField("id", lastID).Debug("Ignoring stale queue drain")
		return
	}
	c.dispatch(Event{Kind: EventEnded, Gen: gen})
}

func (c *Controller) itemGen(id uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen, ok := c.items[id]
	return gen, ok
}

func (c *Controller) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// dispatch applies ev and notifies listeners outside the lock.
func (c *Controller) dispatch(ev Event) State {
	c.mu.Lock()
	if c.closed {
		st := c.model.State
		c.mu.Unlock()
		return st
	}
	c.model = reduce(c.model, ev)
	st := c.model.State
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"event":   ev.Kind,
		"gen":     ev.Gen,
		"playing": st.IsPlaying,
		"loading": st.IsLoading,
	}).Debug("Narration state updated")

	for _, fn := range listeners {
		fn(st)
	}
	return st
}
