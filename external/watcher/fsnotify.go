package watcher

import (
	"fmt"

	"github.com/foxseedlab/livescribe/internal/readiness"
	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher reports files created or written in a single directory.
type FSNotifyWatcher struct {
	w      *fsnotify.Watcher
	events chan string
	errs   chan error
}

func NewFSNotifyWatcher(dir string) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	fw := &FSNotifyWatcher{
		w:      w,
		events: make(chan string, 64),
		errs:   make(chan error, 8),
	}
	go fw.forward()
	return fw, nil
}

// Watch adapts NewFSNotifyWatcher to readiness.WatchFunc.
func Watch(dir string) (readiness.Watcher, error) {
	w, err := NewFSNotifyWatcher(dir)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (fw *FSNotifyWatcher) forward() {
	defer close(fw.events)
	defer close(fw.errs)
	events := fw.w.Events
	errs := fw.w.Errors
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				select {
				case fw.events <- ev.Name:
				default:
					// The detector's directory scan picks up anything dropped here.
				}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			select {
			case fw.errs <- err:
			default:
			}
		}
	}
}

func (fw *FSNotifyWatcher) Events() <-chan string { return fw.events }

func (fw *FSNotifyWatcher) Errors() <-chan error { return fw.errs }

func (fw *FSNotifyWatcher) Close() error {
	return fw.w.Close()
}
