package hlsgrab

import (
	"fmt"
	"os"
	"os/exec"
)

// Muxer concatenates the ordered segment files named by a concat manifest
// into a single output file. It is the only collaborator the Job Controller
// hands the finished download to; the core never reads encoded media.
type Muxer interface {
	Concatenate(manifestPath, outputPath string) error
}

// FFmpegMuxer is the default Muxer: ffmpeg's concat demuxer with stream
// copy, no re-encoding. This is the conventional (not mandated) invocation.
type FFmpegMuxer struct {
	// BinaryPath overrides the ffmpeg executable name/path; defaults to
	// "ffmpeg" resolved via PATH.
	BinaryPath string
}

// NewFFmpegMuxer returns a Muxer backed by the system ffmpeg binary.
func NewFFmpegMuxer() *FFmpegMuxer {
	return &FFmpegMuxer{BinaryPath: "ffmpeg"}
}

func (m *FFmpegMuxer) binary() string {
	if m.BinaryPath != "" {
		return m.BinaryPath
	}
	return "ffmpeg"
}

// checkFFmpeg verifies the configured ffmpeg binary is resolvable in PATH.
func (m *FFmpegMuxer) checkFFmpeg() error {
	if _, err := exec.LookPath(m.binary()); err != nil {
		return ErrFFmpegNotFound
	}
	return nil
}

// Concatenate runs `ffmpeg -f concat -safe 0 -i <manifest> -c copy -y <output>`.
// manifestPath must already exist (the Job Controller writes it per §6).
func (m *FFmpegMuxer) Concatenate(manifestPath, outputPath string) error {
	if err := m.checkFFmpeg(); err != nil {
		return err
	}
	if _, err := os.Stat(manifestPath); err != nil {
		return fmt.Errorf("concat manifest unreadable: %w", err)
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		"-y",
		outputPath,
	}

	cmd := exec.Command(m.binary(), args...)
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}
