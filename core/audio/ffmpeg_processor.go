package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"RingCut/logger"
)

// commandRunner runs an external tool and returns its stdout.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w\n%s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

// FFmpegProcessor implements the Processor interface using ffmpeg and ffprobe.
type FFmpegProcessor struct {
	ffmpegPath  string
	ffprobePath string
	mp3Bitrate  string
	run         commandRunner
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(ffmpegPath, ffprobePath, mp3Bitrate string) *FFmpegProcessor {
	if mp3Bitrate == "" {
		mp3Bitrate = "128k"
	}
	return &FFmpegProcessor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		mp3Bitrate:  mp3Bitrate,
		run:         runCommand,
	}
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeResult is what ffprobe reports about the first audio stream.
type ProbeResult struct {
	Codec    string
	Duration float64
}

// Probe reads codec and duration of a file.
func (p *FFmpegProcessor) Probe(ctx context.Context, inputFile string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name:format=duration",
		"-of", "json",
		inputFile,
	}

	out, err := p.run(ctx, p.ffprobePath, args...)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", inputFile, err)
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out, &probeData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w", inputFile, err)
	}
	if len(probeData.Streams) == 0 {
		return nil, fmt.Errorf("%w: no audio stream in %s", ErrUnsupportedFormat, filepath.Base(inputFile))
	}
	if probeData.Format.Duration == "" {
		return nil, fmt.Errorf("duration not found in ffprobe output for %s", inputFile)
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse duration string %q for %s: %w", probeData.Format.Duration, inputFile, err)
	}

	return &ProbeResult{Codec: probeData.Streams[0].CodecName, Duration: duration}, nil
}

// Duration uses ffprobe to get the duration of an audio file in seconds.
func (p *FFmpegProcessor) Duration(ctx context.Context, inputFile string) (float64, error) {
	res, err := p.Probe(ctx, inputFile)
	if err != nil {
		return 0, err
	}
	return res.Duration, nil
}

// ExtractClip cuts [Start, End) out of in, applying fades and volume, and encodes it by out's extension.
func (p *FFmpegProcessor) ExtractClip(ctx context.Context, in, out string, opts ClipOptions) error {
	args, err := clipArgs(in, out, opts, p.mp3Bitrate)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", out, err)
	}

	logger.Debug("extracting clip",
		logger.String("input", in),
		logger.String("output", out),
		logger.String("args", strings.Join(args, " ")))

	if _, err := p.run(ctx, p.ffmpegPath, args...); err != nil {
		os.Remove(out)
		return fmt.Errorf("extract clip to %s: %w", filepath.Base(out), err)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// clipArgs builds the ffmpeg argument list for one extraction.
func clipArgs(in, out string, opts ClipOptions, mp3Bitrate string) ([]string, error) {
	length := opts.Length()
	if length <= 0 {
		return nil, fmt.Errorf("clip length must be positive, got %g", length)
	}

	var codec []string
	switch strings.ToLower(filepath.Ext(out)) {
	case ".wav":
		codec = []string{"-c:a", "pcm_s16le"}
	case ".mp3":
		codec = []string{"-c:a", "libmp3lame", "-b:a", mp3Bitrate}
	default:
		return nil, fmt.Errorf("%w: output %s", ErrUnsupportedFormat, filepath.Base(out))
	}

	// 输入前 seek，输出时间戳从 0 开始
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(opts.Start),
		"-t", formatSeconds(length),
		"-i", in,
		"-vn",
	}

	var filters []string
	if opts.FadeIn > 0 {
		filters = append(filters, fmt.Sprintf("afade=t=in:st=0:d=%s", formatSeconds(opts.FadeIn)))
	}
	if opts.FadeOut > 0 {
		filters = append(filters, fmt.Sprintf("afade=t=out:st=%s:d=%s",
			formatSeconds(length-opts.FadeOut), formatSeconds(opts.FadeOut)))
	}
	if opts.Volume >= 0 && opts.Volume != 1 {
		filters = append(filters, "volume="+formatSeconds(opts.Volume))
	}
	if len(filters) > 0 {
		args = append(args, "-af", strings.Join(filters, ","))
	}

	args = append(args, codec...)
	return append(args, out), nil
}
