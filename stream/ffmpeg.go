package stream

import (
	"bufio"
	"context"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

const (
	// MaxNetworkCaching bounds the input buffering requested from ffmpeg
	MaxNetworkCaching = 60 * time.Second

	defaultFrameRate = 5
)

// FFmpegOptions tune how ffmpeg reads the stream
type FFmpegOptions struct {
	// RTSPTransport is "tcp" or "udp", empty lets ffmpeg decide
	RTSPTransport  string
	NetworkCaching time.Duration
	// FrameRate of the decoded preview frames
	FrameRate int
	Verbose   bool
}

// FFmpegPlayer plays RTSP streams through an ffmpeg process that writes PNG
// frames to its stdout. It keeps the latest decoded frame for capture.
type FFmpegPlayer struct {
	opts     FFmpegOptions
	logger   zerolog.Logger
	lookPath func(file string) (string, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	frame  image.Image
	run    uint64
}

// NewFFmpegPlayer creates a player; ffmpeg is looked up on PATH at Play
func NewFFmpegPlayer(opts FFmpegOptions, logger zerolog.Logger) *FFmpegPlayer {
	return &FFmpegPlayer{
		opts:     opts,
		logger:   logger,
		lookPath: exec.LookPath,
	}
}

func (p *FFmpegPlayer) args(uri string) []string {
	args := []string{"-hide_banner", "-nostdin"}
	if p.opts.Verbose {
		args = append(args, "-loglevel", "verbose")
	} else {
		args = append(args, "-loglevel", "error")
	}
	if p.opts.RTSPTransport != "" {
		args = append(args, "-rtsp_transport", p.opts.RTSPTransport)
	}
	if caching := p.opts.NetworkCaching; caching > 0 {
		if caching > MaxNetworkCaching {
			caching = MaxNetworkCaching
		}
		args = append(args, "-max_delay", strconv.FormatInt(caching.Microseconds(), 10))
	}

	rate := p.opts.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}
	return append(args,
		"-i", uri,
		"-an",
		"-vf", "fps="+strconv.Itoa(rate),
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
}

// Play starts ffmpeg on uri. The first decoded frame reports load complete;
// ffmpeg exiting before Stop reports a playback error.
func (p *FFmpegPlayer) Play(uri string, l Listener) error {
	path, err := p.lookPath("ffmpeg")
	if err != nil {
		return errors.Annotate(err, "ffmpeg not found")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.AlreadyExistsf("running ffmpeg playback")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, path, p.args(uri)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return errors.Annotate(err, "ffmpeg stdout")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return errors.Annotate(err, "starting ffmpeg")
	}

	p.run++
	p.cancel = cancel
	p.frame = nil
	p.logger.Debug().Str("ffmpeg", path).Strs("args", cmd.Args[1:]).Msg("ffmpeg started")

	go p.read(ctx, p.run, cmd, stdout, l)
	return nil
}

func (p *FFmpegPlayer) read(ctx context.Context, run uint64, cmd *exec.Cmd, stdout io.Reader, l Listener) {
	r := bufio.NewReader(stdout)
	loaded := false
	var readErr error
	for {
		frame, err := png.Decode(r)
		if err != nil {
			readErr = err
			break
		}

		p.mu.Lock()
		if p.run == run {
			p.frame = frame
		}
		p.mu.Unlock()

		if !loaded {
			loaded = true
			l.OnLoadComplete()
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	if p.run == run && p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	err := waitErr
	if err == nil {
		err = readErr
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = errors.New("stream ended")
		}
	}
	p.logger.Debug().Err(err).Msg("ffmpeg exited")
	l.OnPlaybackError(errors.Annotate(err, "ffmpeg"))
}

// Stop kills the running ffmpeg process, if any
func (p *FFmpegPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.run++
	p.frame = nil
	return nil
}

// Snapshot returns the latest decoded frame
func (p *FFmpegPlayer) Snapshot() (image.Image, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return nil, ErrNoFrame
	}
	return p.frame, nil
}
