package stream

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type discardListener struct{}

func (discardListener) OnLoadComplete()        {}
func (discardListener) OnPlaybackError(error) {}

func TestFFmpegArgs(t *testing.T) {
	p := NewFFmpegPlayer(FFmpegOptions{
		RTSPTransport:  "tcp",
		NetworkCaching: 300 * time.Millisecond,
		FrameRate:      10,
	}, zerolog.Nop())

	args := p.args("rtsp://10.0.0.5/main")
	assert.Equal(t, []string{
		"-hide_banner", "-nostdin",
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-max_delay", "300000",
		"-i", "rtsp://10.0.0.5/main",
		"-an",
		"-vf", "fps=10",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	}, args)
}

func TestFFmpegArgsDefaults(t *testing.T) {
	p := NewFFmpegPlayer(FFmpegOptions{Verbose: true}, zerolog.Nop())

	args := p.args("rtsp://cam/stream")
	assert.Contains(t, args, "verbose")
	assert.Contains(t, args, "fps=5")
	assert.NotContains(t, args, "-rtsp_transport")
	assert.NotContains(t, args, "-max_delay")
}

func TestFFmpegNetworkCachingIsClamped(t *testing.T) {
	p := NewFFmpegPlayer(FFmpegOptions{NetworkCaching: 5 * time.Minute}, zerolog.Nop())

	args := p.args("rtsp://cam/stream")
	i := indexOf(args, "-max_delay")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "60000000", args[i+1])
}

func TestFFmpegMissingBinary(t *testing.T) {
	p := NewFFmpegPlayer(FFmpegOptions{}, zerolog.Nop())
	p.lookPath = func(string) (string, error) {
		return "", errors.NotFoundf("ffmpeg")
	}

	err := p.Play("rtsp://cam/stream", discardListener{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg not found")
}

func TestFFmpegSnapshotBeforeFirstFrame(t *testing.T) {
	p := NewFFmpegPlayer(FFmpegOptions{}, zerolog.Nop())

	_, err := p.Snapshot()
	assert.Equal(t, ErrNoFrame, err)
	assert.NoError(t, p.Stop())
}

type recordingListener struct {
	mu     sync.Mutex
	loaded int
	errs   []error
}

func (l *recordingListener) OnLoadComplete() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded++
}

func (l *recordingListener) OnPlaybackError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *recordingListener) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded, len(l.errs)
}

// fakeFFmpeg writes a script that prints two PNG frames and exits with 1
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	frame := filepath.Join(dir, "frame.png")
	require.NoError(t, os.WriteFile(frame, buf.Bytes(), 0o644))

	script := filepath.Join(dir, "ffmpeg")
	body := "#!/bin/sh\ncat '" + frame + "' '" + frame + "'\nexit 1\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func TestFFmpegExitReportsErrorAndAllowsReplay(t *testing.T) {
	script := fakeFFmpeg(t)
	p := NewFFmpegPlayer(FFmpegOptions{}, zerolog.Nop())
	p.lookPath = func(string) (string, error) { return script, nil }

	l := &recordingListener{}
	require.NoError(t, p.Play("rtsp://cam/stream", l))
	assert.Eventually(t, func() bool {
		_, errs := l.counts()
		return errs == 1
	}, 5*time.Second, 10*time.Millisecond)

	loaded, errs := l.counts()
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, errs)

	frame, err := p.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 4, frame.Bounds().Dx())

	// the exited process must not block the next Play
	again := &recordingListener{}
	require.NoError(t, p.Play("rtsp://cam/stream", again))
	assert.Eventually(t, func() bool {
		_, errs := again.counts()
		return errs == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.NoError(t, p.Stop())
}

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}
