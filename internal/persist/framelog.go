package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/l1jgo/gridsim/internal/grid"
)

// FrameLog appends occupancy frames as JSON lines to hourly zstd files,
// <dir>/<prefix>-YYYY-MM-DD-HH.jsonl.zst. Used for offline replay of a run's heatmap.
type FrameLog struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewFrameLog(baseDir, prefix string) *FrameLog {
	return &FrameLog{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Write appends one frame. Frames are buffered; Flush or Close makes them durable.
func (l *FrameLog) Write(f grid.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hour := l.now().UTC().Format("2006-01-02-15")
	if hour != l.curHour {
		if err := l.rotateLocked(hour); err != nil {
			return fmt.Errorf("rotate frame log: %w", err)
		}
	}

	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Tick, err)
	}
	b = append(b, '\n')
	if _, err := l.w.Write(b); err != nil {
		return fmt.Errorf("write frame %d: %w", f.Tick, err)
	}
	return nil
}

// Flush pushes buffered frames through the encoder to the file.
func (l *FrameLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.enc.Flush()
}

func (l *FrameLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *FrameLog) pathForHour(hour string) string {
	return filepath.Join(l.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, hour))
}

func (l *FrameLog) rotateLocked(hour string) error {
	prev := l.curHour
	if err := l.closeLocked(); err != nil {
		return fmt.Errorf("close frame log %s: %w", prev, err)
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return fmt.Errorf("create frame log dir: %w", err)
	}
	path := l.pathForHour(hour)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open frame log %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("zstd writer for %s: %w", path, err)
	}
	l.curHour = hour
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (l *FrameLog) closeLocked() error {
	if l.f == nil {
		return nil
	}
	var firstErr error
	if err := l.w.Flush(); err != nil {
		firstErr = err
	}
	if err := l.enc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	l.f, l.enc, l.w, l.curHour = nil, nil, nil, ""
	return firstErr
}

// ReadFrames decodes every frame in one log file.
func ReadFrames(path string) ([]grid.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame log %s: %w", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader for %s: %w", path, err)
	}
	defer dec.Close()

	var out []grid.Frame
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		var fr grid.Frame
		if err := json.Unmarshal(sc.Bytes(), &fr); err != nil {
			return out, fmt.Errorf("decode frame %d: %w", len(out), err)
		}
		out = append(out, fr)
	}
	return out, sc.Err()
}
