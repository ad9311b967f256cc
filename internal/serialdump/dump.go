package serialdump

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/gaitsync/internal/monitoring"
)

// ErrEmptyDump is returned when the device sends nothing before going idle.
var ErrEmptyDump = errors.New("device sent no data")

// Options controls a download.
type Options struct {
	// Request is written to the port before reading, if set.
	Request []byte
	// ReadTimeout is the idle period that ends the transfer.
	ReadTimeout time.Duration
	// MaxBytes caps the dump size; 0 means no limit.
	MaxBytes int64
	// ChunkSize is the read buffer size; defaults to 4096.
	ChunkSize int
}

// Download reads from port until it reports EOF, goes idle for one read
// timeout or MaxBytes is reached.
func Download(ctx context.Context, port Port, opts Options) ([]byte, error) {
	if len(opts.Request) > 0 {
		n, err := port.Write(opts.Request)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}
		if n != len(opts.Request) {
			return nil, fmt.Errorf("short write: %d of %d request bytes", n, len(opts.Request))
		}
	}

	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = 4096
	}
	buf := make([]byte, chunk)
	var out bytes.Buffer
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := port.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if opts.MaxBytes > 0 && int64(out.Len()) >= opts.MaxBytes {
			out.Truncate(int(opts.MaxBytes))
			break
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read failed after %d bytes: %w", out.Len(), err)
		}
		if n == 0 {
			// read timeout with no data
			break
		}
	}

	if out.Len() == 0 {
		return nil, ErrEmptyDump
	}
	return out.Bytes(), nil
}

// Fetch opens path with open, downloads a dump and returns it as a seekable
// reader ready for parse.Decode. The port is closed before returning.
func Fetch(ctx context.Context, open Opener, path string, portOpts PortOptions, opts Options) (*bytes.Reader, error) {
	if open == nil {
		open = OpenSerial
	}
	port, err := open(path, portOpts)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	if tp, ok := port.(TimeoutPort); ok && opts.ReadTimeout > 0 {
		if err := tp.SetReadTimeout(opts.ReadTimeout); err != nil {
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	start := time.Now()
	data, err := Download(ctx, port, opts)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("downloaded %d bytes from %s in %s", len(data), path, time.Since(start).Round(time.Millisecond))
	return bytes.NewReader(data), nil
}
