// Package mailbox reads RFC 5322 messages from a Maildir-style inbox.
// Unprocessed files live in new/, processed ones are moved to cur/.
package mailbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mailtriage/internal/domain"
)

type Mailbox struct {
	Root string
}

// Open ensures the tmp, new and cur directories exist under root.
func Open(root string) (Mailbox, error) {
	root = filepath.Clean(root)
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return Mailbox{}, fmt.Errorf("create mailbox %s: %w", sub, err)
		}
	}
	return Mailbox{Root: root}, nil
}

func (m Mailbox) NewDir() string { return filepath.Join(m.Root, "new") }
func (m Mailbox) CurDir() string { return filepath.Join(m.Root, "cur") }
func (m Mailbox) TmpDir() string { return filepath.Join(m.Root, "tmp") }

// StoreID names the mailbox in active message triples.
func (m Mailbox) StoreID() string {
	return filepath.Base(m.Root)
}

// Pending lists file names waiting in new/, sorted by name.
func (m Mailbox) Pending() ([]string, error) {
	entries, err := os.ReadDir(m.NewDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read parses new/name.
func (m Mailbox) Read(name string) (domain.Message, error) {
	f, err := os.Open(filepath.Join(m.NewDir(), name))
	if err != nil {
		return domain.Message{}, err
	}
	defer f.Close()
	msg, err := Parse(f, m.StoreID(), EntryID(name))
	if err != nil {
		return domain.Message{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return msg, nil
}

// MarkSeen moves new/name to cur/ with the seen flag and returns the new path.
func (m Mailbox) MarkSeen(name string) (string, error) {
	target := name
	if !strings.Contains(target, ":2,") {
		target += ":2,S"
	}
	dst := filepath.Join(m.CurDir(), target)
	if err := os.Rename(filepath.Join(m.NewDir(), name), dst); err != nil {
		return "", fmt.Errorf("move %s to cur: %w", name, err)
	}
	return dst, nil
}

// Deliver writes data to tmp/ and renames it into new/.
func (m Mailbox) Deliver(name string, data []byte) (string, error) {
	tmpPath := filepath.Join(m.TmpDir(), name)
	newPath := filepath.Join(m.NewDir(), name)
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, newPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename tmp->new: %w", err)
	}
	return newPath, nil
}

// EntryID strips the Maildir info suffix from a file name.
func EntryID(name string) string {
	if i := strings.Index(name, ":2,"); i >= 0 {
		name = name[:i]
	}
	return name
}
