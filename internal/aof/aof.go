// Package aof implements the append-only command log described in
// spec.md §4.6: each mutating command is serialized in RESP and appended
// to a file, replayed on boot, and periodically compacted by rewriting
// one canonical command per live key. Grounded on
// original_source/src/aof.rs's append/load shape, generalized from its
// synchronous single-writer version to the fsync-policy and rewrite
// requirements spec.md adds.
package aof

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corekv/corekv/internal/corelog"
	"github.com/corekv/corekv/internal/resp"
)

// FsyncPolicy selects how aggressively Append durability is enforced.
type FsyncPolicy int

const (
	FsyncAlways FsyncPolicy = iota
	FsyncEverySec
	FsyncNo
)

func ParseFsyncPolicy(s string) (FsyncPolicy, error) {
	switch s {
	case "always":
		return FsyncAlways, nil
	case "everysec", "on-interval":
		return FsyncEverySec, nil
	case "no":
		return FsyncNo, nil
	default:
		return 0, fmt.Errorf("aof: unknown appendfsync policy %q", s)
	}
}

// appendTimeout bounds how long a single Append may wait on the log
// mutex before it stops waiting, logs a warning, and returns nil so the
// command is not aborted (spec.md §4.6/§6).
const appendTimeout = 500 * time.Millisecond

// Log is the append-only command log. One Log per server; its mutex
// serializes both normal appends and the buffered writes a concurrent
// Rewrite produces.
type Log struct {
	path   string
	policy FsyncPolicy

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer

	rewriting  bool
	rewriteBuf [][]byte // commands accepted while a rewrite is in flight
	stopFsync  chan struct{}
	fsyncWG    sync.WaitGroup
}

// Open opens (creating if necessary) the log file in append mode and
// starts the background fsync ticker when policy is FsyncEverySec.
func Open(path string, policy FsyncPolicy) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	l := &Log{
		path:      path,
		policy:    policy,
		file:      f,
		writer:    bufio.NewWriter(f),
		stopFsync: make(chan struct{}),
	}
	if policy == FsyncEverySec {
		l.fsyncWG.Add(1)
		go l.fsyncLoop()
	}
	return l, nil
}

func (l *Log) fsyncLoop() {
	defer l.fsyncWG.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			if err := l.file.Sync(); err != nil {
				corelog.Errorf("aof: background fsync failed: %v", err)
			}
			l.mu.Unlock()
		case <-l.stopFsync:
			return
		}
	}
}

// Append serializes argv as a RESP array of bulk strings and writes it
// to the log, honoring the fsync policy. If rewrite is in progress the
// entry is additionally buffered so Rewrite can append it after the
// atomic rename (spec.md §4.6 "buffered and flushed after rename").
func (l *Log) Append(argv [][]byte) error {
	frame := commandFrame(argv)
	encoded := resp.Encode(nil, frame)

	done := make(chan error, 1)
	go func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, err := l.writer.Write(encoded); err != nil {
			done <- err
			return
		}
		if err := l.writer.Flush(); err != nil {
			done <- err
			return
		}
		if l.rewriting {
			l.rewriteBuf = append(l.rewriteBuf, encoded)
		}
		if l.policy == FsyncAlways {
			done <- l.file.Sync()
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(appendTimeout):
		corelog.Warnf("aof: append to %s exceeded %s, continuing without durability guarantee", l.path, appendTimeout)
		return nil
	}
}

func commandFrame(argv [][]byte) resp.Frame {
	items := make([]resp.Frame, len(argv))
	for i, a := range argv {
		items[i] = resp.Bulk(a)
	}
	return resp.ArrSlice(items)
}

// Replay reads every command frame in the log (skipping leading comment
// lines beginning with '#') and invokes apply for each one, in order.
func Replay(path string, apply func(argv [][]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	dec := resp.NewDecoder(r)
	for {
		peek, err := r.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if peek[0] == '#' {
			if _, err := r.ReadString('\n'); err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			continue
		}

		frame, err := dec.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		argv, err := frameToArgv(frame)
		if err != nil {
			return err
		}
		if err := apply(argv); err != nil {
			return err
		}
	}
}

func frameToArgv(f resp.Frame) ([][]byte, error) {
	if f.Kind != resp.Array {
		return nil, fmt.Errorf("aof: replay expected array frame, got %v", f.Kind)
	}
	out := make([][]byte, len(f.Items))
	for i, item := range f.Items {
		if item.Kind != resp.BulkString {
			return nil, fmt.Errorf("aof: replay expected bulk string element, got %v", item.Kind)
		}
		out[i] = item.Bulk
	}
	return out, nil
}

// BeginRewrite marks the log as rewriting so concurrent Appends start
// additionally buffering their encoded frames for FinishRewrite to
// replay after the swap.
func (l *Log) BeginRewrite() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rewriting = true
	l.rewriteBuf = nil
}

// FinishRewrite atomically replaces the live log with newPath's
// contents, then appends whatever commands were buffered during the
// rewrite window, and clears the rewriting flag.
func (l *Log) FinishRewrite(newPath string) error {
	l.mu.Lock()
	buffered := l.rewriteBuf
	l.rewriteBuf = nil
	oldFile := l.file
	oldWriter := l.writer
	l.mu.Unlock()

	_ = oldWriter.Flush()
	_ = oldFile.Close()

	if err := os.Rename(newPath, l.path); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.file = f
	l.writer = bufio.NewWriter(f)
	for _, enc := range buffered {
		if _, err := l.writer.Write(enc); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	err = l.writer.Flush()
	l.rewriting = false
	l.mu.Unlock()
	return err
}

// Close flushes and closes the underlying file and stops the background
// fsync ticker, if any.
func (l *Log) Close() error {
	if l.policy == FsyncEverySec {
		close(l.stopFsync)
		l.fsyncWG.Wait()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

// RewriteWriter is a small helper Rewrite callers use to build the
// compacted replacement file: one canonical command per live key.
type RewriteWriter struct {
	f      *os.File
	writer *bufio.Writer
}

func NewRewriteWriter(tmpPath string) (*RewriteWriter, error) {
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &RewriteWriter{f: f, writer: bufio.NewWriter(f)}, nil
}

func (w *RewriteWriter) WriteCommand(argv [][]byte) error {
	_, err := w.writer.Write(resp.Encode(nil, commandFrame(argv)))
	return err
}

func (w *RewriteWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	return w.f.Close()
}
