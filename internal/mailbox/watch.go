package mailbox

import (
	"context"
	"errors"
	"time"

	"github.com/fsnotify/fsnotify"
)

const pollInterval = 2 * time.Second

// WaitForMail blocks until a file is created in or moved into new/, or ctx
// ends. It polls when a filesystem watcher is unavailable. Files leaving new/
// (MarkSeen) report Rename and do not wake it.
func (m Mailbox) WaitForMail(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return m.pollForMail(ctx)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(m.NewDir()); err != nil {
		return m.pollForMail(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("mailbox watcher closed")
			}
			if event.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("mailbox watcher closed")
			}
			return err
		}
	}
}

func (m Mailbox) pollForMail(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			names, err := m.Pending()
			if err != nil {
				return err
			}
			if len(names) > 0 {
				return nil
			}
		}
	}
}
