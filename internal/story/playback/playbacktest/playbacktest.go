// Package playbacktest provides in-memory media and graph platforms for
// exercising the playback package without audio hardware.
//
// The fakes are driven by the payload: the decoded bytes of an Audio
// payload name its behavior.
package playbacktest

import (
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/spf13/afero"

	"storyvoice/internal/story/playback"
)

// Payload behaviors.
const (
	// OK plays on either engine and ends on its own.
	OK = "RIFF-ok-WAVE"
	// Hold plays until Finish is called.
	Hold = "RIFF-hold-WAVE"
	// FailMedia is rejected by the media element and plays on the graph.
	FailMedia = "RIFF-fail-media-WAVE"
	// FailMediaLate loads, starts and then errors on the media element.
	FailMediaLate = "RIFF-fail-media-late-WAVE"
	// RefusePlay loads on the media element but its Play call fails.
	RefusePlay = "RIFF-refuse-play-WAVE"
	// FailAll is rejected by both engines.
	FailAll = "RIFF-fail-all-WAVE"
	// Stall never reports can-play on the media element.
	Stall = "RIFF-stall-WAVE"
	// SlowDecode blocks graph decoding until Graph.ReleaseDecode.
	SlowDecode = "RIFF-slow-decode-WAVE"
)

// Audio builds a payload carrying behavior.
func Audio(behavior string) playback.GeneratedAudio {
	return playback.GeneratedAudio{
		Base64Data: base64.StdEncoding.EncodeToString([]byte(behavior)),
		MimeType:   "audio/wav",
	}
}

// Meter tracks how many outputs are audible at once across both platforms.
type Meter struct {
	mu      sync.Mutex
	current int
	max     int
	started int
}

func (m *Meter) inc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current++
	m.started++
	if m.current > m.max {
		m.max = m.current
	}
}

func (m *Meter) dec() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current--
}

// Audible returns the number of outputs currently producing sound.
func (m *Meter) Audible() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// MaxAudible returns the highest Audible value observed.
func (m *Meter) MaxAudible() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max
}

// Started returns how many outputs became audible in total.
func (m *Meter) Started() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Env bundles fake platforms sharing one meter and one blob store.
type Env struct {
	Meter *Meter
	Blobs *playback.BlobStore
	Media *Media
	Graph *Graph
}

// NewEnv creates fake platforms over an in-memory filesystem.
func NewEnv() *Env {
	meter := &Meter{}
	blobs := playback.NewBlobStore(afero.NewMemMapFs(), "/blobs")
	return &Env{
		Meter: meter,
		Blobs: blobs,
		Media: &Media{meter: meter, blobs: blobs},
		Graph: &Graph{meter: meter, release: make(chan struct{})},
	}
}

// Orchestrator returns an orchestrator wired to both fakes.
func (e *Env) Orchestrator(loadTimeout, decodeTimeout time.Duration) *playback.Orchestrator {
	return playback.NewOrchestrator(playback.OrchestratorConfig{
		Media:         e.Media,
		Graph:         e.Graph,
		Blobs:         e.Blobs,
		LoadTimeout:   loadTimeout,
		DecodeTimeout: decodeTimeout,
	})
}

// Media is a fake MediaPlatform.
type Media struct {
	meter *Meter
	blobs *playback.BlobStore

	mu       sync.Mutex
	elements []*Element
	// FailNew makes NewElement fail when set.
	FailNew error
}

func (m *Media) NewElement() (playback.MediaElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNew != nil {
		return nil, m.FailNew
	}
	el := &Element{
		media:  m,
		volume: 1,
		events: make(chan playback.MediaEvent, 8),
	}
	m.elements = append(m.elements, el)
	return el, nil
}

// Elements returns every element created so far.
func (m *Media) Elements() []*Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Element(nil), m.elements...)
}

// Last returns the most recently created element, or nil.
func (m *Media) Last() *Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.elements) == 0 {
		return nil
	}
	return m.elements[len(m.elements)-1]
}

// Element is a fake media element.
type Element struct {
	media *Media

	mu       sync.Mutex
	behavior string
	volume   float64
	playing  bool
	paused   bool
	closed   bool
	events   chan playback.MediaEvent
}

func (e *Element) Load(src string) error {
	rc, err := e.media.blobs.Open(src)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.behavior = string(data)
	e.mu.Unlock()

	e.emit(playback.MediaEvent{Kind: playback.MediaLoadStart})
	switch string(data) {
	case FailMedia, FailAll:
		e.emit(playback.MediaEvent{
			Kind: playback.MediaError,
			Code: playback.MediaErrSrcNotSupported,
			Err:  errors.New("format not supported"),
		})
	case Stall:
	default:
		e.emit(playback.MediaEvent{Kind: playback.MediaCanPlay})
	}
	return nil
}

func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return playback.ErrClosed
	}
	if e.behavior == RefusePlay {
		return errors.New("autoplay refused")
	}
	if e.playing {
		if e.paused {
			e.paused = false
			e.media.meter.inc()
		}
		return nil
	}
	e.playing = true
	e.media.meter.inc()

	switch e.behavior {
	case Hold:
	case FailMediaLate:
		go e.Fail()
	default:
		go e.Finish()
	}
	return nil
}

// Finish ends playback naturally.
func (e *Element) Finish() {
	if e.halt() {
		e.emit(playback.MediaEvent{Kind: playback.MediaEnded})
	}
}

// Fail reports a decode error mid-playback.
func (e *Element) Fail() {
	if e.halt() {
		e.emit(playback.MediaEvent{
			Kind: playback.MediaError,
			Code: playback.MediaErrDecode,
			Err:  errors.New("corrupt frame"),
		})
	}
}

// halt silences a playing element and reports whether it was playing.
func (e *Element) halt() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing || e.closed {
		return false
	}
	if !e.paused {
		e.media.meter.dec()
	}
	e.playing = false
	e.paused = false
	return true
}

func (e *Element) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing && !e.paused {
		e.paused = true
		e.media.meter.dec()
	}
	return nil
}

func (e *Element) Rewind() error {
	e.halt()
	return nil
}

func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

// Volume returns the last volume applied.
func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.playing || e.paused
}

// Closed reports whether the element was released.
func (e *Element) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Element) Events() <-chan playback.MediaEvent {
	return e.events
}

func (e *Element) Close() error {
	e.halt()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.events)
	return nil
}

func (e *Element) emit(ev playback.MediaEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.events <- ev
}

// Graph is a fake GraphPlatform.
type Graph struct {
	meter   *Meter
	release chan struct{}

	mu       sync.Mutex
	contexts int
	live     int
	nodes    []*Node
	// FailNew makes NewContext fail when set.
	FailNew error
}

func (g *Graph) NewContext() (playback.AudioContext, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailNew != nil {
		return nil, g.FailNew
	}
	g.contexts++
	g.live++
	return &Context{graph: g}, nil
}

// Contexts returns the number of contexts created.
func (g *Graph) Contexts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contexts
}

// Live returns the number of contexts not yet closed.
func (g *Graph) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// Last returns the most recently started node, or nil.
func (g *Graph) Last() *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.nodes) == 0 {
		return nil
	}
	return g.nodes[len(g.nodes)-1]
}

// ReleaseDecode unblocks every SlowDecode in progress or to come.
func (g *Graph) ReleaseDecode() {
	close(g.release)
}

// Context is a fake audio context.
type Context struct {
	graph *Graph

	once sync.Once
}

type pcm struct {
	behavior string
}

func (p pcm) Duration() time.Duration { return time.Second }

func (c *Context) Decode(buf *playback.Buffer) (playback.PCM, error) {
	behavior := string(buf.Data)
	switch behavior {
	case FailAll:
		return nil, errors.New("unable to decode audio data")
	case SlowDecode:
		<-c.graph.release
	}
	return pcm{behavior: behavior}, nil
}

func (c *Context) Start(p playback.PCM, gain float64, onEnded func()) (playback.GraphNode, error) {
	decoded, ok := p.(pcm)
	if !ok {
		return nil, errors.New("foreign pcm")
	}

	node := &Node{meter: c.graph.meter, gain: gain, connected: true, onEnded: onEnded}
	c.graph.meter.inc()

	c.graph.mu.Lock()
	c.graph.nodes = append(c.graph.nodes, node)
	c.graph.mu.Unlock()

	if decoded.behavior != Hold {
		go node.Finish()
	}
	return node, nil
}

func (c *Context) Close() error {
	c.once.Do(func() {
		c.graph.mu.Lock()
		c.graph.live--
		c.graph.mu.Unlock()
	})
	return nil
}

// Node is a fake started graph chain.
type Node struct {
	meter   *Meter
	onEnded func()

	mu        sync.Mutex
	gain      float64
	connected bool
}

func (n *Node) SetGain(v float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gain = v
}

// Gain returns the last gain applied.
func (n *Node) Gain() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gain
}

func (n *Node) Disconnect() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connected {
		n.connected = false
		n.meter.dec()
	}
}

// Finish ends the chain naturally.
func (n *Node) Finish() {
	n.mu.Lock()
	if !n.connected {
		n.mu.Unlock()
		return
	}
	n.connected = false
	n.meter.dec()
	n.mu.Unlock()

	n.onEnded()
}
