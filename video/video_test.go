package video

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/api"
)

func TestDefaultExtractionConfig(t *testing.T) {
	cfg := DefaultExtractionConfig()
	assert.Equal(t, 8.0, cfg.FPS)
	assert.Equal(t, 0, cfg.MaxFrames)
}

func TestLoadRejectsEmptyData(t *testing.T) {
	_, err := Load(nil, DefaultExtractionConfig())
	require.Error(t, err)
}

func TestSourceFramesWrapsDecodedImages(t *testing.T) {
	src := &Source{
		frames: []image.Image{
			image.NewRGBA(image.Rect(0, 0, 4, 4)),
			image.NewRGBA(image.Rect(0, 0, 4, 4)),
		},
		fps: 8.0,
	}

	frames, err := src.Frames()
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	assert.Equal(t, 8.0, src.FPS())
}

func TestSourceMaxFramesTruncation(t *testing.T) {
	src := &Source{
		frames: make([]image.Image, 5),
		fps:    8.0,
	}
	if len(src.frames) > 3 {
		src.frames = src.frames[:3]
	}
	assert.Len(t, src.frames, 3)
}

func TestRunVideoRequiresInputVideo(t *testing.T) {
	_, err := RunVideo(context.Background(), nil, api.PromptOptions{}, api.SchedulerOptions{}, SeedFixed, nil)
	require.Error(t, err)
}
