package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// EventArchive journals pipeline log events to disk as JSON lines. The
// StreamHub ring is bounded, so API consumers replaying a long run read the
// tail they missed from here. A nil archive is valid and does nothing.
type EventArchive struct {
	path string

	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewEventArchive starts a fresh journal at path, truncating any previous
// run's file. An empty path disables archiving and returns (nil, nil).
func NewEventArchive(path string) (*EventArchive, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	if err := ensureLogDir(path); err != nil {
		return nil, fmt.Errorf("ensure archive dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &EventArchive{path: path, file: file, enc: json.NewEncoder(file)}, nil
}

// Append journals one event. Write failures are swallowed: the pipeline
// never stops because the archive disk is unhappy.
func (a *EventArchive) Append(evt LogEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enc == nil {
		if !a.reopen() {
			return
		}
	}
	_ = a.enc.Encode(evt)
}

// ReadSince returns archived events with sequence numbers above since, up to
// limit (0 means all), along with the highest sequence seen in the file.
func (a *EventArchive) ReadSince(since uint64, limit int) ([]LogEvent, uint64, error) {
	if a == nil || a.path == "" {
		return nil, since, nil
	}
	file, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, since, nil
		}
		return nil, since, fmt.Errorf("open archive %s: %w", a.path, err)
	}
	defer file.Close()

	var events []LogEvent
	highest := since
	dec := json.NewDecoder(file)
	for {
		var evt LogEvent
		if err := dec.Decode(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return events, highest, fmt.Errorf("decode archive %s: %w", a.path, err)
		}
		if evt.Sequence > highest {
			highest = evt.Sequence
		}
		if evt.Sequence <= since {
			continue
		}
		events = append(events, evt)
		if limit > 0 && len(events) >= limit {
			break
		}
	}
	return events, highest, nil
}

// Close releases the journal file handle.
func (a *EventArchive) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.file != nil {
		err = a.file.Close()
	}
	a.file = nil
	a.enc = nil
	return err
}

// Path reports the journal location.
func (a *EventArchive) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

func (a *EventArchive) reopen() bool {
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false
	}
	a.file = file
	a.enc = json.NewEncoder(file)
	return true
}
