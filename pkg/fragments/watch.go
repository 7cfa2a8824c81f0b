package fragments

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// CatalogWatcher hot-reloads the catalog file on change, so newly deployed
// fragments become mountable without a restart.
type CatalogWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     *logrus.Logger
	done    chan struct{}
}

// WatchCatalog starts watching path and calls onReload with each
// successfully loaded catalog. Invalid intermediate writes are logged and
// skipped; the previous catalog stays in effect.
func WatchCatalog(path string, log *logrus.Logger, onReload func(*Catalog)) (*CatalogWatcher, error) {
	if log == nil {
		log = logrus.New()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, and a watch on
	// the file itself is lost with the old inode.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &CatalogWatcher{
		path:    path,
		watcher: watcher,
		log:     log,
		done:    make(chan struct{}),
	}
	go w.loop(onReload)
	return w, nil
}

// Close stops the watcher.
func (w *CatalogWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *CatalogWatcher) loop(onReload func(*Catalog)) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}

			catalog, err := LoadCatalog(w.path)
			if err != nil {
				w.log.WithError(err).Warn("Catalog reload failed, keeping previous")
				continue
			}
			w.log.WithField("fragments", len(catalog.Fragments)).Info("Catalog reloaded")
			onReload(catalog)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("Catalog watcher error")

		case <-w.done:
			return
		}
	}
}
