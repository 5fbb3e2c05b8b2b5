// Package statusfile feeds machine power states from a plain text file into
// the scheduler. Shop-floor PLC bridges that cannot speak AMQP drop a line
// per machine into the file and the watcher picks changes up live.
package statusfile

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"go.uber.org/zap"
)

// Handler receives one state per machine listed in the file.
type Handler func(state *domain.MachineState)

type Watcher struct {
	path    string
	handler Handler
	log     *zap.Logger
}

func NewWatcher(path string, handler Handler, log *zap.Logger) *Watcher {
	return &Watcher{
		path:    path,
		handler: handler,
		log:     log,
	}
}

// Run applies the current file contents, then blocks re-applying on every
// write until the context is cancelled. A missing file is not an error; the
// watcher waits for it to appear.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.apply(); err != nil {
		w.log.Warn("Initial status file read failed", zap.Error(err))
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	// Watch the directory, not the file: editors and PLC bridges tend to
	// replace the file atomically, which drops a watch on the inode.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Status file watch error", zap.Error(err))
		case <-debounce:
			debounce = nil
			if err := w.apply(); err != nil {
				w.log.Warn("Status file read failed", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) apply() error {
	states, err := ParseFile(w.path)
	if err != nil {
		return err
	}
	for _, state := range states {
		w.handler(state)
	}
	w.log.Debug("Applied status file", zap.Int("machines", len(states)))
	return nil
}

// ParseFile reads "MACHINE=STATE" lines. Blank lines and lines starting with
// '#' are skipped, as are lines without an '='.
func ParseFile(path string) ([]*domain.MachineState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	now := time.Now()
	var states []*domain.MachineState

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		machineID := strings.TrimSpace(name)
		token := strings.ToUpper(strings.TrimSpace(value))
		if machineID == "" || token == "" {
			continue
		}

		states = append(states, &domain.MachineState{
			MachineID:    machineID,
			CurrentState: token,
			LastUpdate:   now,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return states, nil
}
