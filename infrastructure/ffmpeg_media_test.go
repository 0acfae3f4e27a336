package infrastructure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/layout"
)

func testMedia() *FFmpegMedia {
	return NewFFmpegMedia("ffmpeg", "ffprobe", EncodingOptions{FPS: 60, Bitrate: "15M", Preset: "slow"}, zap.NewNop())
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestParseProbe(t *testing.T) {
	clip, err := parseProbe("a.mp4", []byte(`{"streams":[{"width":1080,"height":1920}],"format":{"duration":"12.500000"}}`))
	require.NoError(t, err)
	assert.Equal(t, layout.Size{W: 1080, H: 1920}, clip.Size())
	assert.Equal(t, 12500*time.Millisecond, clip.Duration())
	assert.Equal(t, "a.mp4", clip.Path())
	assert.NoError(t, clip.Close())

	_, err = parseProbe("a.mp4", []byte(`{"streams":[],"format":{"duration":"1"}}`))
	assert.Error(t, err)
	_, err = parseProbe("a.mp4", []byte(`{"streams":[{"width":1,"height":1}],"format":{"duration":"N/A"}}`))
	assert.Error(t, err)
}

func TestRenderRefusesClosedClip(t *testing.T) {
	m := testMedia()
	m.run = func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("ffmpeg must not run for a closed clip")
		return nil, nil
	}
	info := []byte(`{"streams":[{"width":1080,"height":1920}],"format":{"duration":"2"}}`)
	primary, err := parseProbe("a.mp4", info)
	require.NoError(t, err)
	gameplay, err := parseProbe("g.mp4", info)
	require.NoError(t, err)

	require.NoError(t, gameplay.Close())
	assert.Error(t, gameplay.Close())
	err = m.Render(context.Background(), layout.Plan{}, primary, gameplay, "out.mp4")
	assert.ErrorContains(t, err, "g.mp4")
}

func TestOpenRunsFFprobe(t *testing.T) {
	m := testMedia()
	m.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		assert.Equal(t, "ffprobe", name)
		assert.Equal(t, "in.mp4", args[len(args)-1])
		return []byte(`{"streams":[{"width":720,"height":1280}],"format":{"duration":"3.0"}}`), nil
	}
	clip, err := m.Open(context.Background(), "in.mp4")
	require.NoError(t, err)
	assert.Equal(t, layout.Size{W: 720, H: 1280}, clip.Size())

	m.run = func(context.Context, string, ...string) ([]byte, error) { return nil, errors.New("no such file") }
	_, err = m.Open(context.Background(), "missing.mp4")
	assert.Error(t, err)
}

func TestRenderArgs_HorizontalSplitPrimaryOnTop(t *testing.T) {
	l := domain.Layout{Split: domain.SplitHorizontal, Position: domain.PositionTop, Percentage: 50, Edit: domain.EditCrop}
	plan, err := layout.BuildPlan(l, layout.Input{
		Primary:          layout.Size{W: 1080, H: 1920},
		PrimaryDuration:  10 * time.Second,
		Gameplay:         layout.Size{W: 1920, H: 1080},
		GameplayDuration: 30 * time.Second,
	})
	require.NoError(t, err)

	args := testMedia().RenderArgs(plan, "p.mp4", "g.mp4", "out.mp4")
	filter := argAfter(args, "-filter_complex")

	assert.NotContains(t, args, "-stream_loop")
	assert.True(t, strings.HasPrefix(filter, "[0:v]"), "primary is stacked first: %s", filter)
	assert.Contains(t, filter, "[p][g]vstack=inputs=2[out]")
	assert.Equal(t, "10.000", argAfter(args, "-t"))
	assert.Equal(t, "60", argAfter(args, "-r"))
	assert.Equal(t, "15M", argAfter(args, "-b:v"))
	assert.Equal(t, "slow", argAfter(args, "-preset"))
	assert.Equal(t, "0:a?", args[indexOf(args, "[out]")+2])
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestRenderArgs_LoopsShortGameplayAndOrdersBottom(t *testing.T) {
	l := domain.Layout{Split: domain.SplitHorizontal, Position: domain.PositionBottom, Percentage: 60, Edit: domain.EditCrop}
	plan, err := layout.BuildPlan(l, layout.Input{
		Primary:          layout.Size{W: 1080, H: 1920},
		PrimaryDuration:  20 * time.Second,
		Gameplay:         layout.Size{W: 640, H: 360},
		GameplayDuration: 5 * time.Second,
	})
	require.NoError(t, err)

	args := testMedia().RenderArgs(plan, "p.mp4", "g.mp4", "out.mp4")
	loop := indexOf(args, "-stream_loop")
	require.GreaterOrEqual(t, loop, 0)
	assert.Equal(t, "g.mp4", args[loop+3], "loop applies to the gameplay input")

	filter := argAfter(args, "-filter_complex")
	assert.True(t, strings.HasPrefix(filter, "[1:v]scale="), "gameplay is upscaled and first: %s", filter)
	assert.Contains(t, filter, "[g][p]vstack=inputs=2[out]")
}

func TestRenderArgs_OmitsEmptyClip(t *testing.T) {
	l := domain.Layout{Split: domain.SplitHorizontal, Position: domain.PositionTop, Percentage: 100, Edit: domain.EditCrop}
	plan, err := layout.BuildPlan(l, layout.Input{
		Primary:          layout.Size{W: 1080, H: 1920},
		PrimaryDuration:  4 * time.Second,
		Gameplay:         layout.Size{W: 1080, H: 1920},
		GameplayDuration: 4 * time.Second,
	})
	require.NoError(t, err)
	require.True(t, plan.Gameplay.Empty())

	filter := argAfter(testMedia().RenderArgs(plan, "p.mp4", "g.mp4", "out.mp4"), "-filter_complex")
	assert.NotContains(t, filter, "[1:v]")
	assert.NotContains(t, filter, "vstack")
	assert.True(t, strings.HasSuffix(filter, "[p]null[out]"), filter)
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}

func TestLocalFileStore(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalFileStore(filepath.Join(root, "reels"), filepath.Join(root, "gameplays"), filepath.Join(root, "outputs"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "reels", "j-1.mp4"), store.DownloadPath("j-1"))
	assert.Equal(t, filepath.Join(root, "gameplays", "g-1.mp4"), store.GameplayPath("g-1"))

	src := store.DownloadPath("j-1")
	content := []byte("\x00\x00\x00\x18ftypmp42 original bytes")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	out, err := store.CopyToOutput(src, "j-1")
	require.NoError(t, err)
	assert.Equal(t, store.OutputPath("j-1"), out)
	copied, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, content, copied)

	require.NoError(t, store.Remove(src))
	assert.NoFileExists(t, src)
	assert.NoError(t, store.Remove(src), "removing a missing file is not an error")

	_, err = store.CopyToOutput(filepath.Join(root, "nope.mp4"), "j-2")
	assert.Error(t, err)
}
