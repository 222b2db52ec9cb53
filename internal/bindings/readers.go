package bindings

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const defaultCommandTimeout = 5 * time.Second

// numberPattern finds the first decimal number in command output, as in
// "temp=48.3'C".
var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// fileReader reads path on every call. Numeric content is multiplied by
// scale (0 means 1). Other content is returned as trimmed text unless a
// scale was requested.
func fileReader(path string, scale float64) func() (any, error) {
	return func() (any, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		text := strings.TrimSpace(string(data))

		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			if scale != 0 {
				return nil, fmt.Errorf("%w: %s holds %q, not a number", ErrInvalidValue, path, text)
			}
			return text, nil
		}
		return applyScale(f, scale), nil
	}
}

// runFunc runs a shell command and returns its standard output.
type runFunc func(ctx context.Context, command string) ([]byte, error)

func runShell(ctx context.Context, command string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", command).Output() //nolint:gosec // G204: command comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("running %q: %w", command, err)
	}
	return out, nil
}

// commandReader runs command with a timeout and returns the first number
// of its output times scale, or the trimmed output when it has no number.
func commandReader(run runFunc, command string, scale float64, timeout time.Duration) func() (any, error) {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		out, err := run(ctx, command)
		if err != nil {
			return nil, err
		}
		text := strings.TrimSpace(string(out))

		match := numberPattern.FindString(text)
		if match == "" {
			if scale != 0 {
				return nil, fmt.Errorf("%w: %q printed no number", ErrInvalidValue, command)
			}
			return text, nil
		}
		f, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return applyScale(f, scale), nil
	}
}

func applyScale(f, scale float64) float64 {
	if scale == 0 {
		return f
	}
	return f * scale
}
