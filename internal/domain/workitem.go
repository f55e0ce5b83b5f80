package domain

import (
	"strings"
	"time"
)

type WorkItem struct {
	ID               string
	ParentID         string // project
	ItemID           string // package
	Title            string
	Status           string
	Assignee         string
	LinkedThreadIDs  []string
	ActiveMessageIDs []string // store|entry|message-id, oldest first
	CreatedAt        time.Time
}

// ActiveMessage is one parsed entry of WorkItem.ActiveMessageIDs.
type ActiveMessage struct {
	Store     string
	EntryID   string
	MessageID string
}

// ParseActiveMessage splits a store|entry|message-id triple. An entry without
// separators is treated as a bare message id.
func ParseActiveMessage(raw string) ActiveMessage {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, "|", 3)
	switch len(parts) {
	case 3:
		return ActiveMessage{Store: parts[0], EntryID: parts[1], MessageID: parts[2]}
	case 1:
		return ActiveMessage{MessageID: parts[0]}
	default:
		return ActiveMessage{Store: parts[0], EntryID: parts[1]}
	}
}

func (m ActiveMessage) String() string {
	return m.Store + "|" + m.EntryID + "|" + m.MessageID
}

// HasThread reports whether threadID is one of the item's linked thread ids.
func (w WorkItem) HasThread(threadID string) bool {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return false
	}
	for _, t := range w.LinkedThreadIDs {
		if strings.TrimSpace(t) == threadID {
			return true
		}
	}
	return false
}

// IsOpen reports whether the item still accepts new messages.
func IsOpen(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "done", "closed", "cancelled", "canceled":
		return false
	default:
		return true
	}
}

// NormalizeStatus maps the status spellings found in tracking sheets onto a
// small canonical set. Unknown values are returned trimmed.
func NormalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "new", "open", "todo":
		return "open"
	case "in progress", "working", "wip", "progress":
		return "in progress"
	case "waiting", "blocked", "on hold":
		return "waiting"
	case "done", "completed", "complete", "shipped":
		return "done"
	case "closed":
		return "closed"
	case "cancelled", "canceled":
		return "cancelled"
	default:
		return strings.TrimSpace(status)
	}
}
