// Package tailer returns the last N newline-delimited records of a file by
// seeking backward from the end, so files far larger than memory can be
// previewed without reading them forward from the start.
package tailer

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Tail returns the last n newline-delimited records of the file at path.
// If the file holds fewer than n separators the whole content is returned.
func Tail(path string, n int) (string, error) {
	return TailSep(path, n, []byte{'\n'})
}

// TailSep is Tail with an explicit record separator. The separator must have
// a constant byte width (single-byte or fixed-width multi-byte encodings);
// behavior is undefined for variable-width encodings.
func TailSep(path string, n int, sep []byte) (string, error) {
	if n <= 0 {
		return "", nil
	}
	if len(sep) == 0 {
		return "", fmt.Errorf("tailer: empty separator")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("tailer: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("tailer: stat %s: %w", path, err)
	}

	width := int64(len(sep))
	pos := fi.Size()
	buf := make([]byte, width)
	count := 0

	// Step backward one separator-width unit at a time, counting matches.
	// Reaching the start of the file before the count target means the file
	// holds fewer than n records; return it whole.
	start := int64(0)
	for pos >= width {
		pos -= width
		if _, err := f.ReadAt(buf, pos); err != nil {
			return "", fmt.Errorf("tailer: read %s at %d: %w", path, pos, err)
		}
		if bytes.Equal(buf, sep) {
			count++
			if count == n {
				start = pos + width
				break
			}
		}
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return "", fmt.Errorf("tailer: seek %s: %w", path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("tailer: read %s: %w", path, err)
	}
	return string(data), nil
}
