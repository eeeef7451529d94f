package build

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

// RotatingLogWriter writes the log to a size rotated file. Until
// InitLogRotator is called, or when file logging is disabled, writes are
// discarded.
type RotatingLogWriter struct {
	path    string
	pipe    *io.PipeWriter
	rotator *rotator.Rotator

	// done is closed once the rotator stopped reading the pipe. runErr
	// is only read after that.
	done   chan struct{}
	runErr error
}

// NewRotatingLogWriter creates a writer that discards until
// InitLogRotator is called.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// newCompressor returns the compressor used for rolled files and the file
// suffix it adds.
func newCompressor(name string) (rotator.Compressor, string, error) {
	switch name {
	case Gzip:
		return gzip.NewWriter(nil), logCompressors[Gzip], nil

	case Zstd:
		z, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create zstd "+
				"compressor: %w", err)
		}

		return z, logCompressors[Zstd], nil

	default:
		return nil, "", fmt.Errorf("unknown log compressor: %v", name)
	}
}

// InitLogRotator starts writing to logFile, rolling it into compressed files
// in the same directory once it reaches the configured size. Close must be
// called on shutdown.
func (r *RotatingLogWriter) InitLogRotator(cfg *LogConfig,
	logFile string) error {

	if err := cfg.Validate(); err != nil {
		return err
	}

	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w",
				err)
		}
	}

	compressor, suffix, err := newCompressor(cfg.Compressor)
	if err != nil {
		return err
	}

	rot, err := rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false, cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	rot.SetCompressor(compressor, suffix)

	pr, pw := io.Pipe()
	r.path = logFile
	r.rotator = rot
	r.pipe = pw
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		err := rot.Run(pr)
		if err == nil || errors.Is(err, io.EOF) {
			return
		}

		// The log file itself failed, stderr is all that is left.
		_, _ = fmt.Fprintf(os.Stderr, "log file %s: %v\n", logFile, err)
		r.runErr = err
		_ = pr.CloseWithError(err)
	}()

	return nil
}

// Path returns the file being written, empty when file logging is off.
func (r *RotatingLogWriter) Path() string {
	return r.path
}

// Write hands b to the rotator, if one is running.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.pipe == nil {
		return len(b), nil
	}

	return r.pipe.Write(b)
}

// Close waits until every written line reached the file and closes it. The
// error that stopped the rotator early, if any, is returned.
func (r *RotatingLogWriter) Close() error {
	if r.pipe == nil {
		return nil
	}

	_ = r.pipe.Close()
	<-r.done

	closeErr := r.rotator.Close()
	if r.runErr != nil {
		return fmt.Errorf("log rotation failed: %w", r.runErr)
	}

	return closeErr
}
