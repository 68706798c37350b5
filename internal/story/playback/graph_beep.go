package playback

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"
)

// DefaultSampleRate is the rate the speaker runs at. Sources are resampled to it.
const DefaultSampleRate = beep.SampleRate(44100)

// BeepGraph is a GraphPlatform on top of the beep speaker. The speaker is
// initialized once per process; each context owns the streamers it starts.
type BeepGraph struct {
	sampleRate beep.SampleRate

	initOnce sync.Once
	initErr  error
}

// NewBeepGraph creates the beep graph platform.
func NewBeepGraph() *BeepGraph {
	return &BeepGraph{sampleRate: DefaultSampleRate}
}

func (g *BeepGraph) NewContext() (AudioContext, error) {
	return &beepContext{graph: g}, nil
}

func (g *BeepGraph) initSpeaker() error {
	g.initOnce.Do(func() {
		g.initErr = speaker.Init(g.sampleRate, g.sampleRate.N(time.Second/10))
		if g.initErr == nil {
			logrus.WithField("sample_rate", g.sampleRate).Debug("Speaker initialized")
		}
	})
	return g.initErr
}

type beepPCM struct {
	buffer *beep.Buffer
}

func (p *beepPCM) Duration() time.Duration {
	return p.buffer.Format().SampleRate.D(p.buffer.Len())
}

type beepContext struct {
	graph *BeepGraph

	mu     sync.Mutex
	nodes  []*beepNode
	closed bool
}

// Decode reads the whole buffer so corrupt audio is reported here rather
// than midway through playback.
func (c *beepContext) Decode(buf *Buffer) (PCM, error) {
	mimeType := CanonicalMimeType(buf.MimeType)
	if sniffed := SniffMimeType(buf.Data); sniffed != "" {
		mimeType = sniffed
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch mimeType {
	case MimeMPEG:
		streamer, format, err = mp3.Decode(nopCloser{bytes.NewReader(buf.Data)})
	case MimeWAV:
		streamer, format, err = wav.Decode(bytes.NewReader(buf.Data))
	case MimeOGG:
		streamer, format, err = vorbis.Decode(nopCloser{bytes.NewReader(buf.Data)})
	default:
		return nil, &DecodeError{Stage: StageAudio, Err: fmt.Errorf("unsupported audio format %q", buf.MimeType)}
	}
	if err != nil {
		return nil, &DecodeError{Stage: StageAudio, Err: err}
	}
	defer streamer.Close()

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	if err := streamer.Err(); err != nil {
		return nil, &DecodeError{Stage: StageAudio, Err: err}
	}
	if buffer.Len() == 0 {
		return nil, &DecodeError{Stage: StageAudio, Err: errors.New("no audio samples decoded")}
	}

	logrus.WithFields(logrus.Fields{
		"mime_type":   mimeType,
		"sample_rate": format.SampleRate,
		"channels":    format.NumChannels,
		"samples":     buffer.Len(),
	}).Debug("Audio decoded")
	return &beepPCM{buffer: buffer}, nil
}

func (c *beepContext) Start(pcm PCM, gain float64, onEnded func()) (GraphNode, error) {
	p, ok := pcm.(*beepPCM)
	if !ok {
		return nil, fmt.Errorf("unexpected PCM type %T", pcm)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if err := c.graph.initSpeaker(); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	source := p.buffer.Streamer(0, p.buffer.Len())
	node := &beepNode{
		volume: &effects.Volume{
			Streamer: beep.Resample(4, p.buffer.Format().SampleRate, c.graph.sampleRate, source),
			Base:     2,
		},
	}
	applyGain(node.volume, gain)

	// The callback sits inside the ctrl so a disconnect also drops it. It
	// runs on the speaker goroutine, which must not block on speaker calls.
	node.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(node.volume, beep.Callback(func() {
			go onEnded()
		})),
	}
	c.nodes = append(c.nodes, node)
	speaker.Play(node.ctrl)
	return node, nil
}

func (c *beepContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, node := range c.nodes {
		node.Disconnect()
	}
	c.nodes = nil
	return nil
}

type beepNode struct {
	ctrl   *beep.Ctrl
	volume *effects.Volume
}

func (n *beepNode) SetGain(v float64) {
	speaker.Lock()
	applyGain(n.volume, v)
	speaker.Unlock()
}

func (n *beepNode) Disconnect() {
	speaker.Lock()
	n.ctrl.Streamer = nil
	speaker.Unlock()
}

// applyGain maps a linear gain in [0,1] onto a base-2 volume effect.
func applyGain(vol *effects.Volume, gain float64) {
	gain = ClampVolume(gain)
	if gain == 0 {
		vol.Silent = true
		return
	}
	vol.Silent = false
	vol.Volume = math.Log2(gain)
}

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }
