//go:build !(ffmpeg && cgo)

package video

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
)

// extractFrames shells out to a system ffmpeg binary to sample frames at
// cfg.FPS, since this build carries no embedded decoder. Mirrors the
// embedded-decoder path's signature so callers in video.go don't need to
// know which one is linked in.
func extractFrames(videoData []byte, cfg ExtractionConfig) ([]image.Image, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("video: ffmpeg not found on PATH and this build has no embedded decoder: %w", err)
	}

	dir, err := os.MkdirTemp("", "diffuse-video-*")
	if err != nil {
		return nil, fmt.Errorf("video: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input")
	if err := os.WriteFile(inPath, videoData, 0o600); err != nil {
		return nil, fmt.Errorf("video: write temp input: %w", err)
	}

	pattern := filepath.Join(dir, "frame-%05d.jpg")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60_000_000_000 // 60s, avoids importing time solely for this default
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultExtractionConfig().FPS
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", inPath,
		"-vf", fmt.Sprintf("fps=%f", fps),
		"-vsync", "0",
		pattern,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("video: ffmpeg extraction failed: %w: %s", err, string(out))
	}

	matches, err := filepath.Glob(filepath.Join(dir, "frame-*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("video: glob extracted frames: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("video: ffmpeg produced no frames")
	}

	frames := make([]image.Image, 0, len(matches))
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("video: open %s: %w", path, err)
		}
		img, err := jpeg.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("video: decode %s: %w", path, err)
		}
		frames = append(frames, img)
	}
	return frames, nil
}
