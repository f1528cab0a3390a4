package logs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	pollInterval = 200 * time.Millisecond
	blockSize    = 8 << 10
	maxLineBytes = 1 << 20
)

// Options selects which part of a log file Tail returns.
type Options struct {
	// Offset is the byte position to resume from. A negative offset returns
	// the last Limit lines.
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
}

// Result holds complete lines and the offset to pass to the next call.
type Result struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// Tail reads complete lines from path. A missing file yields no lines and a
// zero offset so callers can poll before the file is created. A trailing
// line without a newline is left for the next call.
func Tail(ctx context.Context, path string, opts Options) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Result{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result Result
	if opts.Offset < 0 {
		result, err = lastLines(path, opts.Limit)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			offset = info.Size()
		}
		result, err = readFrom(path, offset, opts.Limit)
	}
	if err != nil {
		return Result{Offset: opts.Offset}, err
	}
	if len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, nil
	}
	return follow(ctx, path, result.Offset, opts)
}

// lastLines scans backwards from the end of the file in fixed blocks until
// limit complete lines are found.
func lastLines(path string, limit int) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("stat log file: %w", err)
	}
	// Only complete lines are returned; the end offset stops after the last
	// newline.
	end, err := lastNewline(file, info.Size())
	if err != nil {
		return Result{}, err
	}
	if limit <= 0 || end == 0 {
		return Result{Offset: end}, nil
	}

	var tail []byte
	pos := end
	for pos > 0 && bytes.Count(tail, []byte{'\n'}) <= limit && int64(len(tail)) < maxLineBytes*int64(limit) {
		n := min(int64(blockSize), pos)
		pos -= n
		block := make([]byte, n)
		if _, err := file.ReadAt(block, pos); err != nil && !errors.Is(err, io.EOF) {
			return Result{}, fmt.Errorf("read log file: %w", err)
		}
		tail = append(block, tail...)
	}

	lines := splitLines(tail)
	if pos > 0 && len(lines) > 0 {
		// The first line may start before pos.
		lines = lines[1:]
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return Result{Lines: lines, Offset: end}, nil
}

func lastNewline(file *os.File, size int64) (int64, error) {
	pos := size
	buf := make([]byte, blockSize)
	for pos > 0 {
		n := min(int64(len(buf)), pos)
		pos -= n
		if _, err := file.ReadAt(buf[:n], pos); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read log file: %w", err)
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return pos + int64(i) + 1, nil
		}
	}
	return 0, nil
}

// readFrom returns complete lines starting at offset. A positive limit caps
// the number of lines and the offset stops after the last returned line.
func readFrom(path string, offset int64, limit int) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, nil
		}
		return Result{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.NewSectionReader(file, offset, maxLineBytes*64))
	if err != nil {
		return Result{Offset: offset}, fmt.Errorf("read log file: %w", err)
	}
	complete := bytes.LastIndexByte(data, '\n') + 1
	data = data[:complete]
	if limit > 0 {
		consumed, count := 0, 0
		for count < limit {
			i := bytes.IndexByte(data[consumed:], '\n')
			if i < 0 {
				break
			}
			consumed += i + 1
			count++
		}
		data = data[:consumed]
	}
	return Result{Lines: splitLines(data), Offset: offset + int64(len(data))}, nil
}

func follow(ctx context.Context, path string, offset int64, opts Options) (Result, error) {
	timer := time.NewTimer(opts.Wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{Offset: offset}, ctx.Err()
		case <-timer.C:
			return Result{Offset: offset}, nil
		case <-ticker.C:
			result, err := readFrom(path, offset, opts.Limit)
			if err != nil {
				return Result{Offset: offset}, err
			}
			if len(result.Lines) > 0 {
				return result, nil
			}
		}
	}
}

func splitLines(data []byte) []string {
	data = bytes.TrimSuffix(data, []byte{'\n'})
	if len(data) == 0 {
		return nil
	}
	parts := bytes.Split(data, []byte{'\n'})
	lines := make([]string, len(parts))
	for i, part := range parts {
		lines[i] = string(bytes.TrimSuffix(part, []byte{'\r'}))
	}
	return lines
}
