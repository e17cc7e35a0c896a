package scenefile

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/bimstream/internal/logger"
	"github.com/Faultbox/bimstream/internal/stream"
)

// Watcher serves the messages of a scene file and reloads them when the
// file changes. A failed reload keeps the previous scene.
type Watcher struct {
	path string
	opts Options
	log  *zap.Logger

	mu   sync.RWMutex
	msgs []stream.Message

	// OnReload, if set before Run, is called after every reload attempt.
	OnReload func(err error)
}

// NewWatcher loads path once and returns a watcher serving it.
func NewWatcher(path string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve scene path")
	}
	w := &Watcher{path: abs, opts: opts, log: logger.Named("scenefile")}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Messages returns the current scene's messages. It implements
// stream.Source.
func (w *Watcher) Messages() ([]stream.Message, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.msgs, nil
}

func (w *Watcher) reload() error {
	scene, err := Load(w.path)
	if err != nil {
		return err
	}
	msgs, err := scene.Messages(w.opts)
	if err != nil {
		return errors.Wrapf(err, "scene %s", w.path)
	}

	w.mu.Lock()
	w.msgs = msgs
	w.mu.Unlock()

	geoms, objects := scene.Counts()
	w.log.Info("scene loaded",
		zap.String("path", w.path),
		zap.Int("geometries", geoms),
		zap.Int("objects", objects),
		zap.Int("messages", len(msgs)))
	return nil
}

// Run watches the scene file until ctx is done. The directory is watched
// rather than the file, so editors that save by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return errors.Wrap(err, "failed to watch scene directory")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			err := w.reload()
			if err != nil {
				w.log.Warn("scene reload failed, keeping previous scene", zap.Error(err))
			}
			if w.OnReload != nil {
				w.OnReload(err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}
