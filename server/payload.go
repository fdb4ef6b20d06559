package server

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gdlive/gdlive/observability"
)

// payloadWatcher reloads the static client bundle when the file on
// disk changes and tells connected viewers to refresh. Editors often
// replace files by rename, so the parent directory is watched and
// events are filtered by name.
type payloadWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func watchPayload(path string, set func([]byte), h *hub, logger observability.Logger) (*payloadWatcher, error) {
	if data, err := os.ReadFile(path); err == nil {
		set(data)
	} else {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	pw := &payloadWatcher{watcher: w, done: make(chan struct{})}
	go func() {
		defer close(pw.done)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				data, err := os.ReadFile(path)
				if err != nil {
					logger.Warn("payload reload", observability.Error("err", err))
					continue
				}
				set(data)
				logger.Info("payload reloaded", observability.String("path", path))
				h.broadcast(event{Type: "reload"})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("payload watch", observability.Error("err", err))
			}
		}
	}()
	return pw, nil
}

func (pw *payloadWatcher) close() {
	pw.watcher.Close()
	<-pw.done
}
