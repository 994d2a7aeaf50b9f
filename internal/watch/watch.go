// Package watch reports debounced changes to a directory.
package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// DefaultDelay is how long a directory must stay quiet before a change is reported.
const DefaultDelay = 200 * time.Millisecond

// Event reports the last file touched in a burst of changes.
type Event struct {
	Name string
	Op   fsnotify.Op
}

// Dir watches dir until ctx is done. Bursts of writes collapse into one
// Event sent after delay of quiet; events are dropped while the receiver
// is busy. The channel is closed when watching stops.
func Dir(ctx context.Context, dir string, delay time.Duration, logger hclog.Logger) (<-chan Event, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	events := make(chan Event, 1)

	go func() {
		defer watcher.Close()

		var (
			mu     sync.Mutex
			timer  *time.Timer
			last   fsnotify.Event
			closed bool
		)
		defer func() {
			mu.Lock()
			closed = true
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			close(events)
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				logger.Trace("fs event", "name", event.Name, "op", event.Op.String())

				mu.Lock()
				last = event
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(delay, func() {
					mu.Lock()
					defer mu.Unlock()
					if closed {
						return
					}
					select {
					case events <- Event{Name: last.Name, Op: last.Op}:
					default:
					}
				})
				mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if !errors.Is(err, fsnotify.ErrEventOverflow) {
					logger.Warn("watch error", "dir", dir, "error", err)
				}
			}
		}
	}()

	return events, nil
}
