package extraction

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rsamf/mink/internal/errors"
)

// Media runs ffmpeg and ffprobe against uploaded videos.
type Media struct {
	FFmpegPath  string
	FFprobePath string
	Exec        Executor
}

// NewMedia returns a Media using the given tool paths. Empty paths fall back
// to the binaries on PATH.
func NewMedia(ffmpegPath, ffprobePath string, exec Executor) *Media {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if exec == nil {
		exec = NewExecutor()
	}
	return &Media{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Exec: exec}
}

// Duration returns the container duration in seconds.
func (m *Media) Duration(ctx context.Context, videoPath string) (float64, error) {
	stdout, _, err := m.Exec.Run(ctx, m.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath)
	if err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(string(stdout))
	if raw == "" || raw == "N/A" {
		return 0, errors.Newf("ffprobe could not determine duration").
			Category(errors.CategoryCommandExecution).
			Context("path", videoPath).
			Build()
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || d < 0 || math.IsNaN(d) {
		return 0, errors.Newf("failed to parse duration %q", raw).
			Category(errors.CategoryCommandExecution).
			Context("path", videoPath).
			Build()
	}
	return d, nil
}

var ptsTimeRe = regexp.MustCompile(`pts_time:\s*([0-9]+(?:\.[0-9]+)?)`)

// parseSceneCuts extracts cut timestamps from showinfo output.
func parseSceneCuts(stderr []byte) []float64 {
	var cuts []float64
	for _, line := range strings.Split(string(stderr), "\n") {
		if !strings.Contains(line, "showinfo") {
			continue
		}
		m := ptsTimeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if t, err := strconv.ParseFloat(m[1], 64); err == nil {
			cuts = append(cuts, t)
		}
	}
	return cuts
}

// buildShots turns cut points into contiguous shots covering [0, duration].
// With maxShots > 0 the trailing shots are folded into the last kept one so
// the timeline stays covered.
func buildShots(cuts []float64, duration float64, maxShots int) []Shot {
	if duration <= 0 {
		if len(cuts) == 0 {
			return nil
		}
		duration = slices.Max(cuts)
	}

	bounds := []float64{0}
	slices.Sort(cuts)
	for _, c := range slices.Compact(cuts) {
		if c > 0 && c < duration {
			bounds = append(bounds, c)
		}
	}
	bounds = append(bounds, duration)

	shots := make([]Shot, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		shots = append(shots, Shot{Start: bounds[i], End: bounds[i+1]})
	}

	if maxShots > 0 && len(shots) > maxShots {
		shots[maxShots-1].End = duration
		shots = shots[:maxShots]
	}
	return shots
}

// DetectShots finds scene changes whose score exceeds threshold and returns
// the resulting shots. A video without cuts is a single shot.
func (m *Media) DetectShots(ctx context.Context, videoPath string, threshold float64, maxShots int) ([]Shot, error) {
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.3
	}

	duration, err := m.Duration(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf("select='gt(scene,%s)',showinfo", strconv.FormatFloat(threshold, 'f', -1, 64))
	_, stderr, err := m.Exec.Run(ctx, m.FFmpegPath,
		"-hide_banner", "-nostats",
		"-i", videoPath,
		"-filter:v", filter,
		"-an", "-f", "null", "-")
	if err != nil {
		return nil, err
	}

	return buildShots(parseSceneCuts(stderr), duration, maxShots), nil
}

// formatSeconds renders a seek offset for ffmpeg.
func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// ExtractFrame writes the frame at the given time to outPath (PNG).
func (m *Media) ExtractFrame(ctx context.Context, videoPath string, at float64, outPath string) error {
	_, _, err := m.Exec.Run(ctx, m.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-y", outPath)
	return err
}

// ExtractAudio writes a 16 kHz mono WAV of the soundtrack to outPath, the
// input format speech models expect.
func (m *Media) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	_, _, err := m.Exec.Run(ctx, m.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-vn", "-ac", "1", "-ar", "16000",
		"-f", "wav",
		"-y", outPath)
	return err
}
