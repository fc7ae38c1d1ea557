package stream

import (
	"bytes"
	"context"
	"image/png"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

const (
	capturePrefix     = "MI_"
	captureTimeLayout = "20060102_150405.000"

	eventBuffer = 32
)

// Controller manages one playback session. Its state is owned by a single
// loop goroutine; operations and player signals are messages to that loop.
type Controller struct {
	player  Player
	frames  FrameSource
	storage Storage
	pip     PictureInPictureHost
	logger  zerolog.Logger
	now     func() time.Time

	ops     chan func()
	events  chan event
	done    chan struct{}
	exited  chan struct{}
	closing sync.Once

	// owned by loop
	state      State
	uri        string
	visibility Visibility
	capturing  bool
	generation uint64
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

// WithPictureInPicture sets the host used for visibility changes. Without
// one every picture-in-picture request is unsupported.
func WithPictureInPicture(host PictureInPictureHost) ControllerOption {
	return func(c *Controller) { c.pip = host }
}

// WithClock replaces time.Now for capture file names
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

type eventKind int

const (
	eventLoaded eventKind = iota
	eventFailed
	eventCaptured
)

type event struct {
	kind       eventKind
	generation uint64
	err        error
}

// NewController starts a controller in Idle. Close releases it.
func NewController(player Player, frames FrameSource, storage Storage, opts ...ControllerOption) *Controller {
	c := &Controller{
		player:  player,
		frames:  frames,
		storage: storage,
		logger:  zerolog.Nop(),
		now:     time.Now,
		ops:     make(chan func()),
		events:  make(chan event, eventBuffer),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.loop()
	return c
}

func (c *Controller) loop() {
	defer close(c.exited)
	for {
		c.drainEvents()
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
		case op := <-c.ops:
			c.drainEvents()
			op()
		case <-c.done:
			return
		}
	}
}

func (c *Controller) drainEvents() {
	for {
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
		default:
			return
		}
	}
}

// do runs op on the loop and waits for it
func (c *Controller) do(op func()) error {
	finished := make(chan struct{})
	select {
	case c.ops <- func() { op(); close(finished) }:
	case <-c.done:
		return ErrClosed
	}
	<-finished
	return nil
}

func (c *Controller) signal(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) handleEvent(ev event) {
	if ev.kind == eventCaptured {
		c.capturing = false
		return
	}

	if ev.generation != c.generation {
		c.logger.Debug().Uint64("generation", ev.generation).Msg("ignoring signal from earlier playback")
		return
	}

	switch ev.kind {
	case eventLoaded:
		if c.state != StateLoading {
			return
		}
		c.state = StatePlaying
		c.logger.Info().Str("uri", c.uri).Msg("playback started")

	case eventFailed:
		if c.state != StateLoading && c.state != StatePlaying {
			return
		}
		c.state = StateError
		c.generation++
		if err := c.player.Stop(); err != nil {
			c.logger.Warn().Err(err).Msg("stopping player after playback error")
		}
		c.logger.Error().Err(ev.err).Str("uri", c.uri).Msg("playback failed")
	}
}

// playback is the Listener handed to the player for one Play
type playback struct {
	c          *Controller
	generation uint64
}

func (p *playback) OnLoadComplete() {
	p.c.signal(event{kind: eventLoaded, generation: p.generation})
}

func (p *playback) OnPlaybackError(err error) {
	p.c.signal(event{kind: eventFailed, generation: p.generation, err: err})
}

// Play starts loading uri. It fails with ErrAlreadyActive while a playback is
// loading or playing and with ErrPlaybackError after a playback error until
// Stop is called.
func (c *Controller) Play(uri string) error {
	var result error
	err := c.do(func() {
		switch c.state {
		case StateLoading, StatePlaying:
			result = opError(ErrAlreadyActive, "play", nil)
			return
		case StateError:
			result = opError(ErrPlaybackError, "play", errors.New("stop the failed playback first"))
			return
		}
		if uri == "" {
			result = opError(ErrPlaybackError, "play", errors.NotValidf("empty stream URI"))
			return
		}

		c.generation++
		c.state = StateLoading
		c.uri = uri
		c.logger.Info().Str("uri", uri).Msg("loading stream")

		if err := c.player.Play(uri, &playback{c: c, generation: c.generation}); err != nil {
			c.state = StateError
			c.generation++
			c.logger.Error().Err(err).Str("uri", uri).Msg("player refused stream")
			result = opError(ErrPlaybackError, "play", err)
		}
	})
	if err != nil {
		return err
	}
	return result
}

// Stop ends the current playback. It succeeds without effect in Idle and
// Stopped.
func (c *Controller) Stop() error {
	var result error
	err := c.do(func() {
		result = c.stop()
	})
	if err != nil {
		return err
	}
	return result
}

func (c *Controller) stop() error {
	switch c.state {
	case StateIdle, StateStopped:
		return nil
	case StateError:
		c.state = StateStopped
		return nil
	}

	c.state = StateStopped
	c.generation++
	c.logger.Info().Str("uri", c.uri).Msg("playback stopped")
	if err := c.player.Stop(); err != nil {
		return opError(ErrPlaybackError, "stop", err)
	}
	return nil
}

type captureResult struct {
	path string
	err  error
}

// Capture saves the current frame as a PNG image and returns its location.
// Only one capture runs at a time; a second request while one is running is
// rejected with a capture error wrapping ErrCaptureInProgress.
func (c *Controller) Capture(ctx context.Context) (string, error) {
	var (
		result  error
		pending chan captureResult
	)
	err := c.do(func() {
		if c.state != StatePlaying {
			result = opError(ErrCaptureError, "capture", errors.Errorf("capture unavailable while %s", c.state))
			return
		}
		if c.capturing {
			result = opError(ErrCaptureError, "capture", ErrCaptureInProgress)
			return
		}
		c.capturing = true
		pending = make(chan captureResult, 1)
		go c.capture(c.now(), pending)
	})
	if err != nil {
		return "", err
	}
	if result != nil {
		return "", result
	}

	select {
	case r := <-pending:
		return r.path, r.err
	case <-ctx.Done():
		return "", opError(ErrCaptureError, "capture", ctx.Err())
	}
}

func (c *Controller) capture(at time.Time, pending chan<- captureResult) {
	path, err := c.saveFrame(at)
	if err != nil {
		c.logger.Warn().Err(err).Msg("capture failed")
		err = opError(ErrCaptureError, "capture", err)
	} else {
		c.logger.Info().Str("path", path).Msg("frame captured")
	}

	c.signal(event{kind: eventCaptured})
	pending <- captureResult{path: path, err: err}
}

func (c *Controller) saveFrame(at time.Time) (string, error) {
	frame, err := c.frames.Snapshot()
	if err != nil {
		return "", err
	}
	if frame == nil {
		return "", ErrNoFrame
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return "", errors.Annotate(err, "encoding frame")
	}

	name, err := captureName(at)
	if err != nil {
		return "", err
	}
	return c.storage.Save(name, buf.Bytes())
}

// captureName is MI_<yyyyMMdd_HHmmss.mmm>_<8 hex digits>.png
func captureName(at time.Time) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", errors.Annotate(err, "generating capture name")
	}
	return capturePrefix + at.Format(captureTimeLayout) + "_" + id.String()[:8] + ".png", nil
}

// EnterPictureInPicture switches the presentation to picture-in-picture
// without touching playback
func (c *Controller) EnterPictureInPicture() error {
	return c.setVisibility(VisibilityPictureInPicture)
}

// ExitPictureInPicture returns to normal presentation
func (c *Controller) ExitPictureInPicture() error {
	return c.setVisibility(VisibilityNormal)
}

func (c *Controller) setVisibility(to Visibility) error {
	op := "enter picture-in-picture"
	if to == VisibilityNormal {
		op = "exit picture-in-picture"
	}

	var result error
	err := c.do(func() {
		if c.pip == nil || !c.pip.Supported() {
			result = opError(ErrPictureInPictureUnsupported, op, nil)
			return
		}
		if c.visibility == to {
			return
		}

		var err error
		if to == VisibilityPictureInPicture {
			err = c.pip.Enter()
		} else {
			err = c.pip.Exit()
		}
		if err != nil {
			result = opError(ErrPictureInPictureUnsupported, op, err)
			return
		}
		c.visibility = to
		c.logger.Debug().Str("visibility", to.String()).Msg("visibility changed")
	})
	if err != nil {
		return err
	}
	return result
}

// Snapshot returns the current status
func (c *Controller) Snapshot() Status {
	var st Status
	if err := c.do(func() {
		st = Status{
			State:          c.state,
			URI:            c.uri,
			Visibility:     c.visibility,
			Capturing:      c.capturing,
			CaptureEnabled: c.state == StatePlaying,
		}
	}); err != nil {
		return Status{State: StateStopped}
	}
	return st
}

// Close stops any active playback and the controller loop. Operations after
// Close return ErrClosed.
func (c *Controller) Close() error {
	var result error
	c.closing.Do(func() {
		if err := c.do(func() { result = c.stop() }); err != nil {
			result = err
		}
		close(c.done)
		<-c.exited
	})
	return result
}
