package thread

import (
	"strings"

	"mailtriage/internal/domain"
)

// Identity holds the message ids used for matching.
type Identity struct {
	InReplyTo      string
	MessageID      string
	ConversationID string
}

// IdentityOf extracts the matching fields from a message.
func IdentityOf(msg domain.Message) Identity {
	return Identity{
		InReplyTo:      msg.InReplyTo,
		MessageID:      msg.MessageID,
		ConversationID: msg.ConversationID,
	}
}

// MatchKind says how a work item was matched.
type MatchKind int

const (
	NoMatch MatchKind = iota
	// HardMatch: the reply id is one of the item's tracked message ids.
	HardMatch
	// SoftMatch: the conversation id is linked to the item.
	SoftMatch
)

func (k MatchKind) String() string {
	switch k {
	case HardMatch:
		return "reply"
	case SoftMatch:
		return "conversation"
	default:
		return "none"
	}
}

// Match returns the first item whose tracked messages contain the reply id.
// Only when no item matches that way does it fall back to the first item
// linked to the conversation id.
func Match(items []domain.WorkItem, id Identity) (domain.WorkItem, MatchKind) {
	if reply := domain.NormalizeMessageID(id.InReplyTo); reply != "" {
		for _, item := range items {
			if ReplyIndex(item, reply) >= 0 {
				return item, HardMatch
			}
		}
	}
	if conv := strings.TrimSpace(id.ConversationID); conv != "" {
		for _, item := range items {
			if item.HasThread(conv) {
				return item, SoftMatch
			}
		}
	}
	return domain.WorkItem{}, NoMatch
}

// ReplyIndex returns the position of the newest active message of item whose
// message id equals normalizedID, or -1. Positions count from the oldest entry.
func ReplyIndex(item domain.WorkItem, normalizedID string) int {
	if normalizedID == "" {
		return -1
	}
	for i := len(item.ActiveMessageIDs) - 1; i >= 0; i-- {
		entry := domain.ParseActiveMessage(item.ActiveMessageIDs[i])
		if domain.NormalizeMessageID(entry.MessageID) == normalizedID {
			return i
		}
	}
	return -1
}
