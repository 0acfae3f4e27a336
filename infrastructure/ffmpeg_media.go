// infrastructure/ffmpeg_media.go
package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/layout"
	"github.com/vitovidale/autosplit-service/usecase"
)

var _ usecase.MediaTool = (*FFmpegMedia)(nil)

// commandRunner runs an external binary and returns its stdout. Failures
// carry the tail of stderr.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), fmt.Errorf("%s: %w: %s", name, err, tail(stderr.String(), 400))
	}
	return stdout.Bytes(), nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

type EncodingOptions struct {
	FPS     int
	Bitrate string
	Preset  string
}

// FFmpegMedia measures clips with ffprobe and renders composition plans
// with a single ffmpeg filter graph.
type FFmpegMedia struct {
	FFmpegPath  string
	FFprobePath string
	Encoding    EncodingOptions
	Logger      *zap.Logger
	run         commandRunner
}

func NewFFmpegMedia(ffmpegPath, ffprobePath string, enc EncodingOptions, logger *zap.Logger) *FFmpegMedia {
	return &FFmpegMedia{
		FFmpegPath:  ffmpegPath,
		FFprobePath: ffprobePath,
		Encoding:    enc,
		Logger:      logger.Named("FFmpegMedia"),
		run:         execRunner,
	}
}

// probedClip holds ffprobe metadata only; ffprobe leaves no open handle
// behind. Close releases the clip so it can no longer be rendered.
type probedClip struct {
	path     string
	size     layout.Size
	duration time.Duration
	closed   atomic.Bool
}

func (c *probedClip) Path() string { return c.path }
func (c *probedClip) Size() layout.Size { return c.size }
func (c *probedClip) Duration() time.Duration { return c.duration }

func (c *probedClip) Close() error {
	if c.closed.Swap(true) {
		return fmt.Errorf("clip %s already closed", c.path)
	}
	return nil
}

func released(clips ...usecase.Clip) error {
	for _, c := range clips {
		if pc, ok := c.(*probedClip); ok && pc.closed.Load() {
			return fmt.Errorf("render %s: clip already closed", pc.path)
		}
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (m *FFmpegMedia) Open(ctx context.Context, path string) (usecase.Clip, error) {
	out, err := m.run(ctx, m.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return parseProbe(path, out)
}

func parseProbe(path string, out []byte) (*probedClip, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("decode probe of %s: %w", path, err)
	}
	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("probe %s: no video stream", path)
	}
	seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("probe %s: bad duration %q: %w", path, probe.Format.Duration, err)
	}
	return &probedClip{
		path:     path,
		size:     layout.Size{W: probe.Streams[0].Width, H: probe.Streams[0].Height},
		duration: time.Duration(seconds * float64(time.Second)),
	}, nil
}

func (m *FFmpegMedia) Render(ctx context.Context, plan layout.Plan, primary, gameplay usecase.Clip, outPath string) error {
	if err := released(primary, gameplay); err != nil {
		return err
	}
	args := m.RenderArgs(plan, primary.Path(), gameplay.Path(), outPath)
	m.Logger.Debug("Rendering composition", zap.String("output", outPath), zap.Strings("args", args))

	start := time.Now()
	if _, err := m.run(ctx, m.FFmpegPath, args...); err != nil {
		return err
	}
	took := time.Since(start)
	compositionDuration.Observe(took.Seconds())
	m.Logger.Info("Composition rendered",
		zap.String("output", outPath),
		zap.Duration("took", took),
	)
	return nil
}

// RenderArgs builds the ffmpeg invocation for plan. Input 0 is the primary
// clip and input 1 the gameplay, looped when it is shorter. Audio comes
// from the primary only.
func (m *FFmpegMedia) RenderArgs(plan layout.Plan, primaryPath, gameplayPath, outPath string) []string {
	args := []string{"-y", "-i", primaryPath}
	if plan.LoopGameplay {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", gameplayPath)

	var filters, stack []string
	addClip := func(input int, label string, cp layout.ClipPlan) {
		if cp.Empty() {
			return
		}
		filters = append(filters, fmt.Sprintf("[%d:v]%s[%s]", input, clipFilter(cp), label))
		stack = append(stack, "["+label+"]")
	}
	if plan.PrimaryFirst {
		addClip(0, "p", plan.Primary)
		addClip(1, "g", plan.Gameplay)
	} else {
		addClip(1, "g", plan.Gameplay)
		addClip(0, "p", plan.Primary)
	}

	if len(stack) > 1 {
		filters = append(filters, fmt.Sprintf("%s%s=inputs=%d[out]", strings.Join(stack, ""), plan.Stack, len(stack)))
	} else if len(stack) == 1 {
		filters = append(filters, stack[0]+"null[out]")
	}

	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[out]",
		"-map", "0:a?",
		"-t", strconv.FormatFloat(plan.Duration.Seconds(), 'f', 3, 64),
		"-r", strconv.Itoa(m.Encoding.FPS),
		"-c:v", "libx264",
		"-b:v", m.Encoding.Bitrate,
		"-preset", m.Encoding.Preset,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outPath,
	)
	return args
}

func clipFilter(cp layout.ClipPlan) string {
	var parts []string
	if cp.Resizes() {
		parts = append(parts, fmt.Sprintf("scale=%d:%d", cp.Resized.W, cp.Resized.H))
	}
	parts = append(parts,
		fmt.Sprintf("crop=%d:%d:%d:%d", cp.Crop.W, cp.Crop.H, cp.Crop.X, cp.Crop.Y),
		"setsar=1",
	)
	return strings.Join(parts, ",")
}
