package fs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// SpoolExt is the extension of spool files. Each line of a spool file is
// one record; files are consumed in name order.
const SpoolExt = ".ndjson"

// SpoolSource implements ports.RecordSource over a directory of
// newline-delimited spool files written by another process.
type SpoolSource struct {
	dir             string
	removeCommitted bool
	logger          ports.Logger

	file    *os.File
	reader  *bufio.Reader
	name    string
	offset  int64
	watcher *fsnotify.Watcher
}

// NewSpoolSource creates a source reading dir. With removeCommitted, spool
// files that were fully consumed and committed are deleted on Ack.
func NewSpoolSource(dir string, removeCommitted bool, logger ports.Logger) *SpoolSource {
	return &SpoolSource{
		dir:             dir,
		removeCommitted: removeCommitted,
		logger:          logger,
	}
}

// Open prepares the source to resume after cp.
func (s *SpoolSource) Open(ctx context.Context, cp domain.Checkpoint) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("spool dir: %w", err)
	}

	// A reopen starts over from cp, not from the last read.
	if err := s.Close(); err != nil {
		s.logger.Warn("close previous spool state", ports.Err(err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.watcher = watcher

	if cp.Position.File == "" {
		return nil
	}
	if err := s.openFile(cp.Position.File, cp.Position.Offset); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		// Consumed and removed; continue with whatever comes after it.
		s.name = cp.Position.File
		s.logger.Warn("checkpoint spool file is gone, skipping ahead",
			ports.String("file", cp.Position.File),
		)
	}
	return nil
}

// Next returns the next complete line. A trailing line without newline is
// left for a later call.
func (s *SpoolSource) Next(ctx context.Context) (domain.Record, error) {
	select {
	case <-ctx.Done():
		return domain.Record{}, ctx.Err()
	default:
	}

	if s.reader == nil {
		if !s.advance() {
			return domain.Record{}, domain.ErrEndOfSource
		}
	}

	for {
		line, err := s.reader.ReadBytes('\n')
		if err == nil {
			s.offset += int64(len(line))
			payload := bytes.TrimRight(line, "\r\n")
			if len(payload) == 0 {
				continue
			}
			return domain.Record{
				Payload:    payload,
				Position:   domain.Position{File: s.name, Offset: s.offset},
				ReceivedAt: time.Now(),
			}, nil
		}
		if !errors.Is(err, io.EOF) {
			return domain.Record{}, err
		}

		if len(line) > 0 {
			// Partial line: rewind so it is read whole later.
			if err := s.rewind(); err != nil {
				return domain.Record{}, err
			}
			return domain.Record{}, domain.ErrEndOfSource
		}
		if !s.advance() {
			return domain.Record{}, domain.ErrEndOfSource
		}
	}
}

// Wait blocks until a spool file is written or created, or ctx is done.
func (s *SpoolSource) Wait(ctx context.Context) error {
	if s.watcher == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-s.watcher.Events:
			if !ok {
				return errors.New("spool watcher closed")
			}
			if !strings.HasSuffix(event.Name, SpoolExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return errors.New("spool watcher closed")
			}
			return fmt.Errorf("spool watcher: %w", err)
		}
	}
}

// Ack removes spool files older than pos.File when removal is enabled.
func (s *SpoolSource) Ack(ctx context.Context, pos domain.Position) error {
	if !s.removeCommitted || pos.File == "" {
		return nil
	}
	names, err := spoolFiles(s.dir)
	if err != nil {
		return err
	}
	for _, n := range names {
		if n >= pos.File {
			break
		}
		if err := os.Remove(filepath.Join(s.dir, n)); err != nil && !os.IsNotExist(err) {
			return err
		}
		s.logger.Debug("removed committed spool file", ports.String("file", n))
	}
	return nil
}

// Close releases all resources.
func (s *SpoolSource) Close() error {
	var errs []error
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
		s.reader = nil
	}
	s.name = ""
	s.offset = 0
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
		s.watcher = nil
	}
	return errors.Join(errs...)
}

// advance opens the first spool file after the current one.
func (s *SpoolSource) advance() bool {
	names, err := spoolFiles(s.dir)
	if err != nil {
		s.logger.Error("list spool dir", ports.Err(err))
		return false
	}
	for _, n := range names {
		if n <= s.name {
			continue
		}
		if err := s.openFile(n, 0); err != nil {
			s.logger.Error("open spool file", ports.String("file", n), ports.Err(err))
			return false
		}
		return true
	}
	return false
}

func (s *SpoolSource) openFile(name string, offset int64) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return err
		}
	}
	if s.file != nil {
		s.file.Close()
	}
	s.file = f
	s.reader = bufio.NewReaderSize(f, 64*1024)
	s.name = name
	s.offset = offset
	return nil
}

func (s *SpoolSource) rewind() error {
	if _, err := s.file.Seek(s.offset, io.SeekStart); err != nil {
		return err
	}
	s.reader.Reset(s.file)
	return nil
}

// spoolFiles lists spool file names in consumption order.
func spoolFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), SpoolExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
