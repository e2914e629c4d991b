package auth

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// WatchPasswdFile watches path for writes and reloads creds from it on
// every change, so an operator can rotate create-board credentials
// without restarting the server. fsnotify is a direct teacher dependency
// declared in go.mod with no consumer in the retrieved source subset;
// this is its wired home. The returned stop func closes the watcher.
func WatchPasswdFile(path string, creds *CreateCredentials) (stop func(), err error) {
	if data, readErr := os.ReadFile(path); readErr == nil {
		if loadErr := creds.LoadFromJSON(data); loadErr != nil {
			return nil, loadErr
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("auth: creating watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("auth: watching %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				data, err := os.ReadFile(path)
				if err != nil {
					continue
				}
				_ = creds.LoadFromJSON(data)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
