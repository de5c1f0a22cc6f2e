package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Params describes one timelapse transcode.
type Params struct {
	Input       string
	Output      string
	SpeedFactor float64
	FrameRate   int
	VideoCodec  string
	DropAudio   bool
	// AudioTrack, when set with DropAudio false, is mixed under the output
	// starting AudioOffset seconds into the track.
	AudioTrack  string
	AudioOffset float64
}

// ProgressUpdate carries one ffmpeg stderr progress line.
type ProgressUpdate struct {
	Timecode string
	Message  string
}

// Transcoder defines the behaviour required by the transcode handler.
type Transcoder interface {
	Transcode(ctx context.Context, params Params, progress func(ProgressUpdate)) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStderr func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary string
	exec   Executor
}

// New constructs an ffmpeg client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	client := &Client{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Transcode runs the speed-up recipe. The video stream is retimed with a
// setpts divisor equal to the speed factor, so a factor of 427.35 turns a
// multi-hour stream into a timelapse of minutes.
func (c *Client) Transcode(ctx context.Context, params Params, progress func(ProgressUpdate)) error {
	args, err := BuildArgs(params)
	if err != nil {
		return err
	}
	if err := c.exec.Run(ctx, c.binary, args, func(line string) {
		if progress == nil {
			return
		}
		if update, ok := parseProgress(line); ok {
			progress(update)
		}
	}); err != nil {
		return fmt.Errorf("ffmpeg transcode: %w", err)
	}
	if info, err := os.Stat(params.Output); err != nil || info.Size() == 0 {
		return errors.New("ffmpeg produced no output file")
	}
	return nil
}

// BuildArgs assembles the ffmpeg invocation for the given parameters.
func BuildArgs(params Params) ([]string, error) {
	if strings.TrimSpace(params.Input) == "" {
		return nil, errors.New("input file required")
	}
	if strings.TrimSpace(params.Output) == "" {
		return nil, errors.New("output file required")
	}
	if params.SpeedFactor <= 1 {
		return nil, fmt.Errorf("speed factor must exceed 1, got %g", params.SpeedFactor)
	}

	codec := strings.TrimSpace(params.VideoCodec)
	if codec == "" {
		codec = "libx264"
	}

	args := []string{"-y", "-i", params.Input}

	withAudio := !params.DropAudio && strings.TrimSpace(params.AudioTrack) != ""
	if withAudio {
		args = append(args,
			"-ss", strconv.FormatFloat(params.AudioOffset, 'f', 2, 64),
			"-i", params.AudioTrack,
		)
	}

	args = append(args, "-vf", videoFilter(params))
	args = append(args, "-c:v", codec)

	if withAudio {
		args = append(args,
			"-map", "0:v:0",
			"-map", "1:a:0",
			"-c:a", "aac",
			"-shortest",
		)
	} else {
		args = append(args, "-an")
	}

	args = append(args, params.Output)
	return args, nil
}

func videoFilter(params Params) string {
	filter := fmt.Sprintf("setpts=PTS/%s", strconv.FormatFloat(params.SpeedFactor, 'f', -1, 64))
	if params.FrameRate > 0 {
		filter += fmt.Sprintf(",fps=%d", params.FrameRate)
	}
	return filter
}

// parseProgress extracts the running timecode from ffmpeg stats lines, e.g.
// "frame= 1234 fps=59 q=23.0 size=10240KiB time=00:01:23.45 bitrate=...".
func parseProgress(line string) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, "time=")
	if idx < 0 {
		return ProgressUpdate{}, false
	}
	rest := line[idx+len("time="):]
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ProgressUpdate{}, false
	}
	return ProgressUpdate{Timecode: fields[0], Message: line}, true
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			if onStderr != nil {
				onStderr(line)
			} else {
				fmt.Fprintln(os.Stderr, line)
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
