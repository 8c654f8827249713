package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/avlab/trackmix/pkg/errors"
	"github.com/avlab/trackmix/pkg/logger"
	"go.uber.org/zap"
)

// Executor implements ports.MediaEngine over ffmpeg/ffprobe subprocesses
type Executor struct {
	ffmpegPath  string
	ffprobePath string
	log         *logger.Logger
}

// ExecutorConfig holds configuration for the media-engine executor
type ExecutorConfig struct {
	// FFmpegPath and FFprobePath override binary resolution when set.
	FFmpegPath  string
	FFprobePath string

	// ResourceDir is searched first when the paths above are empty
	// (bundled binaries). Defaults to $TRACKMIX_RESOURCE_DIR.
	ResourceDir string

	Logger *logger.Logger
}

// NewExecutor creates a new executor. Binaries are resolved in three
// tiers: bundled resource directory, working directory, system PATH.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	resourceDir := cfg.ResourceDir
	if resourceDir == "" {
		resourceDir = os.Getenv("TRACKMIX_RESOURCE_DIR")
	}

	ffmpegPath, err := resolveBinary("ffmpeg", cfg.FFmpegPath, resourceDir)
	if err != nil {
		return nil, err
	}
	ffprobePath, err := resolveBinary("ffprobe", cfg.FFprobePath, resourceDir)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log, _ = logger.New(false)
	}

	return &Executor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         log,
	}, nil
}

func resolveBinary(name, explicit, resourceDir string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	if resourceDir != "" {
		p := filepath.Join(resourceDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if wd, err := os.Getwd(); err == nil {
		p := filepath.Join(wd, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in resource dir, working dir, or PATH: %w", name, err)
	}
	return p, nil
}

// Execute runs ffmpeg with the given arguments to completion
func (e *Executor) Execute(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.log.Debug("executing ffmpeg",
		zap.Strings("args", args),
	)

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return pkgerrors.NewFFmpegError(
			"ffmpeg execution failed",
			args,
			exitCode,
			stderr.String(),
			err,
		)
	}

	return nil
}

// ExecuteProgress runs ffmpeg and streams its combined stdout/stderr to fn
// line by line while the process runs. ffmpeg updates its status line with
// carriage returns, so the stream is split on both \r and \n.
func (e *Executor) ExecuteProgress(ctx context.Context, args []string, fn func(line string)) error {
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return pkgerrors.NewFFmpegError("ffmpeg pipe setup failed", args, -1, "", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	e.log.Debug("executing ffmpeg with progress",
		zap.Strings("args", args),
	)

	var tail []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		sc.Split(scanStatusLines)
		for sc.Scan() {
			line := sc.Text()
			tail = append(tail, line)
			if len(tail) > 10 {
				tail = tail[1:]
			}
			if fn != nil {
				fn(line)
			}
		}
	}()

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return pkgerrors.NewFFmpegError("ffmpeg failed to start", args, -1, "", err)
	}

	waitErr := cmd.Wait()
	pw.Close()
	<-done
	pr.Close()

	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return pkgerrors.NewFFmpegError(
			"ffmpeg execution failed",
			args,
			exitCode,
			strings.Join(tail, "\n"),
			waitErr,
		)
	}

	return nil
}

// scanStatusLines is a bufio.SplitFunc that treats both \r and \n as line
// terminators, so ffmpeg's in-place status updates arrive as lines.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Probe runs ffprobe and returns JSON stream/format output
func (e *Executor) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, pkgerrors.NewFFmpegError(
			"ffprobe execution failed",
			args,
			exitCode,
			stderr.String(),
			err,
		)
	}

	return stdout.Bytes(), nil
}

// ProbeKeyframes scans video packets and returns sorted keyframe
// timestamps in milliseconds. Used for proximity display only.
func (e *Executor) ProbeKeyframes(ctx context.Context, inputPath string) ([]int64, error) {
	args := []string{
		"-v", "quiet",
		"-select_streams", "v:0",
		"-show_entries", "packet=pts_time,flags",
		"-of", "csv=p=0",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, pkgerrors.NewFFmpegError(
			"ffprobe keyframe scan failed",
			args,
			exitCode,
			stderr.String(),
			err,
		)
	}

	return ParseKeyframePackets(stdout.String()), nil
}

// ParseKeyframePackets extracts keyframe timestamps (ms, sorted) from
// ffprobe packet CSV lines of the form "1.234000,K__". Lines without a
// keyframe flag or with unparseable timestamps are skipped.
func ParseKeyframePackets(out string) []int64 {
	var keyframes []int64
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 || !strings.Contains(fields[len(fields)-1], "K") {
			continue
		}
		pts, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		keyframes = append(keyframes, int64(pts*1000))
	}
	sort.Slice(keyframes, func(i, j int) bool { return keyframes[i] < keyframes[j] })
	return keyframes
}
