package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ErrorCallback is called when an error occurs during watching.
type ErrorCallback func(err error)

// Watcher reloads an agent config file when it changes on disk and sends
// each successfully parsed config on its channel.
//
// The parent directory is watched rather than the file so that editors
// replacing the file through a rename are still seen.
type Watcher struct {
	path    string
	reloads chan<- *AgentConfig
	fsw     *fsnotify.Watcher

	onError      ErrorCallback
	droppedCount atomic.Int64

	done chan struct{}
}

// NewWatcher creates a watcher for the config file at path. The file must
// exist.
func NewWatcher(path string, reloads chan<- *AgentConfig) (*Watcher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path is a directory: %s", path)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:    abs,
		reloads: reloads,
		fsw:     fsw,
		done:    make(chan struct{}),
	}, nil
}

// SetErrorCallback sets a callback function that will be called when errors
// occur, including config files that fail to parse.
func (w *Watcher) SetErrorCallback(cb ErrorCallback) {
	w.onError = cb
}

// DroppedEventCount returns the number of reloads dropped because the
// channel was full.
func (w *Watcher) DroppedEventCount() int64 {
	return w.droppedCount.Load()
}

// Start begins watching for events (blocking).
// Returns when the context is cancelled or Close() is called.
func (w *Watcher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadAgentConfig(w.path)
	if err != nil {
		// Partial writes show up as parse errors; the next write event
		// carries the complete file.
		w.report(err)
		return
	}

	// Non-blocking send to prevent blocking when channel is full
	select {
	case w.reloads <- cfg:
	default:
		w.droppedCount.Add(1)
	}
}

func (w *Watcher) report(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// Close stops the watcher and signals Start() to return.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.fsw.Close()
}
