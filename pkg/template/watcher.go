package template

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/formapi/formapi/pkg/observability"
	"github.com/formapi/formapi/pkg/store"
)

// ImportFile reads a template file and imports it.
func ImportFile(ctx context.Context, im *Importer, path string) (Maps, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tmpl store.Document
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, err
	}
	return im.Import(ctx, tmpl)
}

// Watcher re-imports a bootstrap template file whenever it changes on
// disk. Editors replace files rather than write in place, so the parent
// directory is watched and events are filtered by name.
type Watcher struct {
	importer *Importer
	path     string
	log      *observability.Logger
}

// NewWatcher creates a watcher for the given template file.
func NewWatcher(importer *Importer, path string, log *observability.Logger) *Watcher {
	return &Watcher{importer: importer, path: path, log: log}
}

// Watch blocks until the context is cancelled, re-importing on every write
// or rename of the template file. Changes are debounced briefly so a burst
// of editor events triggers one import.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	name := filepath.Base(w.path)
	w.log.WithField("path", w.path).Info("watching template")

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(250 * time.Millisecond)
			pending = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("template watch error")
		case <-pending:
			pending = nil
			if _, err := ImportFile(ctx, w.importer, w.path); err != nil {
				w.log.WithError(err).Error("template re-import failed")
			} else {
				w.log.WithField("path", w.path).Info("template re-imported")
			}
		}
	}
}
