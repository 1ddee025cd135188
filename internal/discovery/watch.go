// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package discovery

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a re-scan whenever a file under one of the watched
// workspace roots changes, so manifest edits take effect without a
// process restart.
type Watcher struct {
	fsw    *fsnotify.Watcher
	log    *slog.Logger
	events chan string
}

// NewWatcher recursively watches every directory under each root.
func NewWatcher(roots []string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			return fsw.Add(path)
		})
	}
	return &Watcher{fsw: fsw, log: log, events: make(chan string, 64)}, nil
}

// Events returns the channel of changed file paths.
func (w *Watcher) Events() <-chan string { return w.events }

// Start begins forwarding fsnotify events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case w.events <- ev.Name:
				default:
					w.log.Warn("discovery: watch event dropped, channel full", "path", ev.Name)
				}
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.log.Error("discovery: watch error", "error", err)
			}
		}
	}()
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
