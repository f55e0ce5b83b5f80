package domain

import "strings"

// Message carries the plain values a mail-access layer extracts from one message.
type Message struct {
	Subject        string
	Body           string
	Sender         string
	To             []string
	MessageID      string
	InReplyTo      string
	ConversationID string
	StoreID        string
	EntryID        string
}

// ParseRecipients splits a semicolon-separated To line.
func ParseRecipients(s string) []string {
	return SplitMulti(s)
}

// NormalizeMessageID strips whitespace and surrounding angle brackets.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}

// ActiveEntry builds the store|entry|message-id triple recorded on a work item.
func (m Message) ActiveEntry() string {
	return ActiveMessage{
		Store:     m.StoreID,
		EntryID:   m.EntryID,
		MessageID: NormalizeMessageID(m.MessageID),
	}.String()
}
