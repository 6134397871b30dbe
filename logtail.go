package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// maxAppendRead bounds a single tick's read; the remainder is picked up on
// the following ticks.
const maxAppendRead = 4 << 20

// TailOptions configures a TailSubscription.
type TailOptions struct {
	Interval time.Duration

	// StartAtEnd seeds the cursor at the current end of file instead of 0.
	StartAtEnd bool

	OnAppend func(text string)

	// OnInitialScan is called once, before any OnAppend, when StartAtEnd is
	// set and the file already has content.
	OnInitialScan func(path string, offset int64)

	// OnDispose is called once when the subscription stops for any reason.
	OnDispose func(path string)
}

// TailSubscription polls one file and delivers only newly appended bytes.
type TailSubscription struct {
	path string
	opts TailOptions
	log  zerolog.Logger
	stat func(name string) (os.FileInfo, error)

	offset atomic.Int64

	mu       sync.Mutex
	onAppend func(text string)
	cancel   context.CancelFunc
	disposed bool
}

func NewTailSubscription(path string, opts TailOptions, log zerolog.Logger) *TailSubscription {
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Millisecond
	}
	return &TailSubscription{
		path:     path,
		opts:     opts,
		log:      log.With().Str("component", "tail").Str("path", path).Logger(),
		onAppend: opts.OnAppend,
		stat:     os.Stat,
	}
}

func (t *TailSubscription) Path() string { return t.path }

// Offset is the number of bytes consumed so far.
func (t *TailSubscription) Offset() int64 { return t.offset.Load() }

// Run polls the file until ctx is cancelled, Dispose is called, or the file
// vanishes or shrinks.
func (t *TailSubscription) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancel = cancel
	t.mu.Unlock()
	defer t.Dispose()

	if !t.start(ctx) {
		return
	}

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.poll() {
				return
			}
		}
	}
}

// start seeds the cursor. With StartAtEnd it retries the stat every interval
// until it succeeds, since reading from 0 would replay the whole history.
func (t *TailSubscription) start(ctx context.Context) bool {
	if !t.opts.StartAtEnd {
		return true
	}
	for {
		info, err := t.stat(t.path)
		if err == nil {
			size := info.Size()
			t.offset.Store(size)
			if size > 0 && t.opts.OnInitialScan != nil {
				t.opts.OnInitialScan(t.path, size)
			}
			return true
		}
		if errors.Is(err, fs.ErrNotExist) {
			t.log.Info().Msg("tail target vanished before start")
			return false
		}
		t.log.Debug().Err(err).Msg("stat at start failed, retrying")

		select {
		case <-ctx.Done():
			return false
		case <-time.After(t.opts.Interval):
		}
	}
}

// poll performs one tick. It returns false when the subscription must stop.
func (t *TailSubscription) poll() bool {
	info, err := t.stat(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.log.Info().Msg("tail target vanished")
			return false
		}
		t.log.Debug().Err(err).Msg("stat failed, retrying next tick")
		return true
	}

	offset := t.offset.Load()
	size := info.Size()
	switch {
	case size < offset:
		t.log.Warn().Int64("offset", offset).Int64("size", size).Msg("tail target shrank")
		return false
	case size == offset:
		return true
	}

	text, err := readRange(t.path, offset, size)
	if err != nil {
		t.log.Debug().Err(err).Msg("read failed, retrying next tick")
		return true
	}
	if len(text) == 0 {
		return true
	}
	t.offset.Add(int64(len(text)))

	t.mu.Lock()
	fn := t.onAppend
	t.mu.Unlock()
	if fn != nil {
		fn(text)
	}
	return true
}

// readRange reads [from, to) capped at maxAppendRead. A short read is
// returned as-is; the cursor only advances by what was actually read.
func readRange(path string, from, to int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	want := to - from
	if want > maxAppendRead {
		want = maxAppendRead
	}
	buf := make([]byte, want)
	n, err := f.ReadAt(buf, from)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read at %d: %w", from, err)
	}
	return string(buf[:n]), nil
}

// Dispose stops polling and drops the append callback. Safe to call more
// than once and from any goroutine.
func (t *TailSubscription) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	t.onAppend = nil
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t.opts.OnDispose != nil {
		t.opts.OnDispose(t.path)
	}
	t.log.Debug().Msg("tail subscription disposed")
}
