//go:build ffmpeg && cgo

package video

// #cgo pkg-config: libavformat libavcodec libavutil libswscale
// #cgo LDFLAGS: -lm -lpthread
import "C"

import (
	"bytes"
	"fmt"
	"image"

	"github.com/asticode/go-astiav"
)

// extractFrames decodes videoData with embedded FFmpeg libraries via
// go-astiav, sampling at cfg.FPS.
func extractFrames(videoData []byte, cfg ExtractionConfig) ([]image.Image, error) {
	inputCtx := astiav.AllocFormatContext()
	if inputCtx == nil {
		return nil, fmt.Errorf("video: failed to allocate format context")
	}
	defer inputCtx.Free()

	ioCtx := astiav.NewIOContext(bytes.NewReader(videoData), nil)
	inputCtx.SetPb(ioCtx)

	if err := inputCtx.OpenInput("", nil, nil); err != nil {
		return nil, fmt.Errorf("video: failed to open input: %w", err)
	}
	defer inputCtx.CloseInput()

	if err := inputCtx.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("video: failed to find stream info: %w", err)
	}

	var videoStream *astiav.Stream
	var codec *astiav.Codec
	for _, stream := range inputCtx.Streams() {
		if stream.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			videoStream = stream
			codec = astiav.FindDecoder(stream.CodecParameters().CodecId())
			break
		}
	}
	if videoStream == nil {
		return nil, fmt.Errorf("video: no video stream found")
	}
	if codec == nil {
		return nil, fmt.Errorf("video: unsupported video codec")
	}

	codecCtx := astiav.AllocCodecContext(codec)
	if codecCtx == nil {
		return nil, fmt.Errorf("video: failed to allocate codec context")
	}
	defer codecCtx.Free()

	if err := codecCtx.FromCodecParameters(videoStream.CodecParameters()); err != nil {
		return nil, fmt.Errorf("video: failed to copy codec parameters: %w", err)
	}
	if err := codecCtx.Open(codec, nil); err != nil {
		return nil, fmt.Errorf("video: failed to open codec: %w", err)
	}

	videoFPS := float64(videoStream.AvgFrameRate().Num()) / float64(videoStream.AvgFrameRate().Den())
	if videoFPS == 0 {
		videoFPS = 30.0
	}
	interval := int(videoFPS / cfg.FPS)
	if interval < 1 {
		interval = 1
	}

	packet := astiav.AllocPacket()
	defer packet.Free()
	frame := astiav.AllocFrame()
	defer frame.Free()

	var frames []image.Image
	count := 0
	for {
		if err := inputCtx.ReadFrame(packet); err != nil {
			if err == astiav.ErrEof {
				break
			}
			return nil, fmt.Errorf("video: read frame: %w", err)
		}
		if packet.StreamIndex() != videoStream.Index() {
			packet.Unref()
			continue
		}
		if err := codecCtx.SendPacket(packet); err != nil {
			packet.Unref()
			continue
		}
		packet.Unref()

		for {
			if err := codecCtx.ReceiveFrame(frame); err != nil {
				break
			}
			if count%interval == 0 {
				img, err := frameToImage(frame, codecCtx.Width(), codecCtx.Height(), codecCtx.PixelFormat())
				if err == nil {
					frames = append(frames, img)
				}
				if cfg.MaxFrames > 0 && len(frames) >= cfg.MaxFrames {
					frame.Unref()
					return frames, nil
				}
			}
			count++
			frame.Unref()
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("video: no frames extracted")
	}
	return frames, nil
}

// frameToImage converts a decoded astiav.Frame to a Go image.RGBA via
// swscale.
func frameToImage(f *astiav.Frame, width, height int, srcPixFmt astiav.PixelFormat) (image.Image, error) {
	swsCtx := astiav.AllocSwsContext(
		width, height, srcPixFmt,
		width, height, astiav.PixelFormatRgba,
		astiav.SwsScaleFlagBilinear,
		nil, nil, nil,
	)
	if swsCtx == nil {
		return nil, fmt.Errorf("video: failed to create swscale context")
	}
	defer swsCtx.Free()

	dst := astiav.AllocFrame()
	if dst == nil {
		return nil, fmt.Errorf("video: failed to allocate destination frame")
	}
	defer dst.Free()
	dst.SetWidth(width)
	dst.SetHeight(height)
	dst.SetPixelFormat(astiav.PixelFormatRgba)
	if err := dst.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("video: allocate frame buffer: %w", err)
	}

	if err := swsCtx.Scale(f.Data(), f.Linesize(), 0, height, dst.Data(), dst.Linesize()); err != nil {
		return nil, fmt.Errorf("video: scale frame: %w", err)
	}

	pixelSize := width * height * 4
	pixelData := dst.Data()[0]
	if len(pixelData) < pixelSize {
		return nil, fmt.Errorf("video: pixel data size mismatch: expected %d, got %d", pixelSize, len(pixelData))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pixelData[:pixelSize])
	return img, nil
}
