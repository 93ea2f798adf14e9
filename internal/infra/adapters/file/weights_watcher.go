package file

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/qrave1/RandomTalk/internal/application/constant"
	"github.com/qrave1/RandomTalk/internal/domain/matching"
)

// WeightsWatcher держит веса оценки из JSON файла и перечитывает их при изменении файла.
// Невалидный файл не применяется: остаются предыдущие веса.
type WeightsWatcher struct {
	path    string
	current atomic.Pointer[matching.Weights]

	watcher   *fsnotify.Watcher
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewWeightsWatcher(path string) (*WeightsWatcher, error) {
	path = filepath.Clean(path)

	w := &WeightsWatcher{
		path:   path,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	weights, err := LoadWeights(path)
	if err != nil {
		return nil, err
	}

	w.current.Store(&weights)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	// Следим за каталогом: редакторы часто сохраняют файл через rename
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch weights dir: %w", err)
	}

	w.watcher = watcher

	go w.watchLoop()

	return w, nil
}

func (w *WeightsWatcher) Weights() matching.Weights {
	return *w.current.Load()
}

func (w *WeightsWatcher) Close() error {
	var err error

	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.watcher.Close()
		<-w.done
	})

	return err
}

func (w *WeightsWatcher) watchLoop() {
	defer close(w.done)

	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			slog.Error("weights watcher", slog.Any(constant.Error, err))
		}
	}
}

func (w *WeightsWatcher) reload() {
	weights, err := LoadWeights(w.path)
	if err != nil {
		slog.Warn(
			"weights reload failed, keeping previous",
			slog.String("path", w.path),
			slog.Any(constant.Error, err),
		)

		return
	}

	w.current.Store(&weights)

	slog.Info("weights reloaded", slog.String("path", w.path))
}

// LoadWeights читает веса поверх значений по умолчанию: в файле можно указать только часть полей
func LoadWeights(path string) (matching.Weights, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return matching.Weights{}, fmt.Errorf("read weights: %w", err)
	}

	weights := matching.DefaultWeights()

	if err := json.Unmarshal(raw, &weights); err != nil {
		return matching.Weights{}, fmt.Errorf("parse weights %s: %w", path, err)
	}

	if err := weights.Validate(); err != nil {
		return matching.Weights{}, fmt.Errorf("invalid weights %s: %w", path, err)
	}

	return weights, nil
}
