package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrSinkClosed is returned when enqueueing into a sink that has been shut down.
var ErrSinkClosed = errors.New("attempt sink is closed")

// ErrSinkFull is returned when the buffer is full and the record was dropped.
var ErrSinkFull = errors.New("attempt sink buffer full")

// FileSink writes attempt records as JSON lines with size-based rotation.
// Writes happen on a background goroutine; Enqueue never blocks.
type FileSink struct {
	fileTemplate  string        // e.g. "./logs/attempts-%s.jsonl"
	maxSize       int64         // rotate once the active file would exceed this
	maxFiles      int           // rotated files kept on disk
	flushInterval time.Duration // flush buffered lines this often

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	recCh  chan *AttemptRecord
	doneCh chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// NewFileSink opens the first log file and starts the writer goroutine.
func NewFileSink(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*FileSink, error) {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	sink := &FileSink{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		recCh:         make(chan *AttemptRecord, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := sink.openFile(); err != nil {
		return nil, err
	}

	sink.wg.Add(1)
	go sink.run()

	return sink, nil
}

// CurrentFile returns the path of the active log file.
func (s *FileSink) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentFile
}

func (s *FileSink) newFileName() string {
	return fmt.Sprintf(s.fileTemplate, time.Now().Format("20060102150405.000000000"))
}

func (s *FileSink) openFile() error {
	s.currentFile = s.newFileName()
	dir := filepath.Dir(s.currentFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(s.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	s.currentSize = fi.Size()
	s.file = file
	s.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded must be called with mu held.
func (s *FileSink) rotateIfNeeded(n int) error {
	if s.maxSize <= 0 || s.currentSize+int64(n) < s.maxSize || s.currentSize == 0 {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}
	if err := s.file.Close(); err != nil {
		return err
	}
	if err := s.openFile(); err != nil {
		return err
	}
	return s.cleanupOldFiles()
}

func (s *FileSink) cleanupOldFiles() error {
	if s.maxFiles <= 0 {
		return nil
	}
	matches, err := filepath.Glob(fmt.Sprintf(s.fileTemplate, "*"))
	if err != nil {
		return err
	}

	// Timestamped names sort chronologically.
	sort.Strings(matches)

	excess := len(matches) - s.maxFiles
	for i := 0; i < excess; i++ {
		if matches[i] == s.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
	return nil
}

func (s *FileSink) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-s.recCh:
			s.write(rec)
		case <-ticker.C:
			s.mu.Lock()
			_ = s.writer.Flush()
			s.mu.Unlock()
		case <-s.doneCh:
			for {
				select {
				case rec := <-s.recCh:
					s.write(rec)
				default:
					s.mu.Lock()
					_ = s.writer.Flush()
					_ = s.file.Close()
					s.mu.Unlock()
					return
				}
			}
		}
	}
}

func (s *FileSink) write(rec *AttemptRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		Warningf("attempt sink: dropping unmarshalable record: %v", err)
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rotateIfNeeded(len(data)); err != nil {
		Errorf("attempt sink: rotation failed: %v", err)
	}
	n, _ := s.writer.Write(data)
	s.currentSize += int64(n)
}

// Enqueue queues a record. A full buffer drops the record and returns ErrSinkFull.
func (s *FileSink) Enqueue(rec *AttemptRecord) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSinkClosed
	}

	select {
	case s.recCh <- rec:
		return nil
	default:
		return ErrSinkFull
	}
}

// Shutdown drains queued records, flushes and closes the file.
func (s *FileSink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.doneCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
