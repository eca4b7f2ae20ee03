package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrExportCancelled is returned once the cancellation flag is observed.
// The caller decides what the user-visible cause is (timeout, shutdown).
var ErrExportCancelled = errors.New("video export cancelled")

const (
	MinVideoFPS             = 24
	MaxVideoFPS             = 30
	MinVideoDurationSeconds = 3.0
	MaxVideoDurationSeconds = 15.0
	MaxVideoFrames          = 450

	max720pPixels    = 1280.0 * 720.0
	minVideoDim      = 320
	encoderPollEvery = 100 * time.Millisecond
)

// ClampVideoParams bounds fps and duration and derives the frame count.
func ClampVideoParams(fps int, durationSeconds float64) (int, float64, int) {
	if fps < MinVideoFPS {
		fps = MinVideoFPS
	}
	if fps > MaxVideoFPS {
		fps = MaxVideoFPS
	}
	durationSeconds = math.Min(MaxVideoDurationSeconds, math.Max(MinVideoDurationSeconds, durationSeconds))

	frames := int(math.Round(durationSeconds * float64(fps)))
	if frames < MinVideoFPS {
		frames = MinVideoFPS
	}
	if frames > MaxVideoFrames {
		frames = MaxVideoFrames
	}
	return fps, durationSeconds, frames
}

// CapMP4Dimensions scales dimensions down to the 720p pixel budget while
// preserving aspect ratio, and forces even sizes for the encoder.
func CapMP4Dimensions(width, height int) (int, int) {
	pixels := float64(width) * float64(height)
	if pixels <= max720pPixels {
		return width &^ 1, height &^ 1
	}

	scale := math.Sqrt(max720pPixels / pixels)
	scaledWidth := int(math.Round(float64(width)*scale)) &^ 1
	scaledHeight := int(math.Round(float64(height)*scale)) &^ 1
	if scaledWidth < minVideoDim {
		scaledWidth = minVideoDim
	}
	if scaledHeight < minVideoDim {
		scaledHeight = minVideoDim
	}
	return scaledWidth, scaledHeight
}

// RenderVideo drives the frame loop and the external encoder. The frame
// stats callback builds the overlay for a given route progress. The
// cancellation flag is checked at every frame boundary and between encoder
// polls; the temp directory is removed on all exit paths.
func RenderVideo(
	data *VizData,
	options *RenderOptions,
	output *OutputConfig,
	frameStats func(progress float64) []StatOverlayItem,
	fps int,
	cancel *atomic.Bool,
) ([]byte, error) {
	workDir := filepath.Join(os.TempDir(), "rideviz-video-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create video temp directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	if cancel.Load() {
		return nil, ErrExportCancelled
	}

	scene, err := PrecomputeRouteScene(data, options)
	if err != nil {
		return nil, fmt.Errorf("failed to precompute route geometry: %w", err)
	}

	frameCount := options.AnimationFrames
	framesStart := time.Now()
	for idx := 0; idx < frameCount; idx++ {
		if cancel.Load() {
			return nil, ErrExportCancelled
		}

		linearProgress := 1.0
		if frameCount > 1 {
			linearProgress = float64(idx) / float64(frameCount-1)
		}
		progress := MapLinearProgressToRoute(data, linearProgress)

		svgText, err := scene.RenderFrame(options, progress, frameStats(progress))
		if err != nil {
			return nil, fmt.Errorf("failed to render frame %d: %w", idx, err)
		}
		pngBytes, err := Rasterize(svgText, output)
		if err != nil {
			return nil, fmt.Errorf("failed to rasterize frame %d: %w", idx, err)
		}

		framePath := filepath.Join(workDir, fmt.Sprintf("frame_%05d.png", idx))
		if err := os.WriteFile(framePath, pngBytes, 0o644); err != nil {
			return nil, fmt.Errorf("failed to write video frame %d: %w", idx, err)
		}
	}
	slog.Info("rendered video frames",
		"frames", frameCount,
		"elapsed_ms", time.Since(framesStart).Milliseconds())

	framePattern := filepath.Join(workDir, "frame_%05d.png")
	outputPath := filepath.Join(workDir, "rideviz-route.mp4")
	encodeStart := time.Now()
	if err := encodeFramesToMP4(framePattern, outputPath, fps, cancel); err != nil {
		return nil, err
	}
	slog.Info("encoded mp4", "elapsed_ms", time.Since(encodeStart).Milliseconds())

	videoBytes, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded MP4: %w", err)
	}
	return videoBytes, nil
}

// encodeFramesToMP4 supervises the ffmpeg subprocess: stderr captured for
// diagnostics, exit status polled so cancellation is observed promptly.
func encodeFramesToMP4(framePattern, outputPath string, fps int, cancel *atomic.Bool) error {
	if cancel.Load() {
		return ErrExportCancelled
	}

	cmd := exec.Command("ffmpeg",
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", framePattern,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outputPath)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to capture ffmpeg stderr: %w", err)
	}
	cmd.Stdout = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	stderrCh := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(stderr)
		stderrCh <- string(data)
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	for {
		select {
		case waitErr := <-waitCh:
			stderrText := strings.TrimSpace(<-stderrCh)
			if waitErr == nil {
				return nil
			}
			if stderrText == "" {
				stderrText = "unknown error"
			}
			return fmt.Errorf("ffmpeg failed to encode MP4: %s", stderrText)
		case <-time.After(encoderPollEvery):
			if cancel.Load() {
				_ = cmd.Process.Kill()
				<-waitCh
				return ErrExportCancelled
			}
		}
	}
}
