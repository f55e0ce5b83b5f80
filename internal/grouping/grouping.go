// Package grouping partitions open work items into ordered buckets relative
// to one message, for selection lists.
package grouping

import (
	"sort"
	"strings"

	"mailtriage/internal/domain"
	"mailtriage/internal/thread"
)

const (
	replyWeight        = 1000
	replyPositionStep  = 10
	messageIDWeight    = 500
	conversationWeight = 100
)

// Request is the message side of a grouping call. Package and Project are
// optional context; when blank they are taken from the best linked item.
type Request struct {
	MessageID      string
	InReplyTo      string
	ConversationID string
	Package        string
	Project        string
}

// RequestFromMessage builds a Request with no package/project context.
func RequestFromMessage(msg domain.Message) Request {
	return Request{
		MessageID:      msg.MessageID,
		InReplyTo:      msg.InReplyTo,
		ConversationID: msg.ConversationID,
	}
}

// LinkWeight scores how directly item is referenced by the request. Replies
// to a tracked message weigh most, newer tracked messages more than older
// ones; then the message's own id; then the conversation id. Zero means the
// item is not linked.
func LinkWeight(item domain.WorkItem, req Request) int {
	if reply := domain.NormalizeMessageID(req.InReplyTo); reply != "" {
		if idx := thread.ReplyIndex(item, reply); idx >= 0 {
			return replyWeight + replyPositionStep*idx
		}
	}
	if own := domain.NormalizeMessageID(req.MessageID); own != "" {
		if thread.ReplyIndex(item, own) >= 0 {
			return messageIDWeight
		}
	}
	if item.HasThread(req.ConversationID) {
		return conversationWeight
	}
	return 0
}

// Group assigns every item to exactly one bucket, in pass order
// linked, package, project, other.
func Group(items []domain.WorkItem, req Request) domain.GroupingResult {
	var res domain.GroupingResult
	claimed := make([]bool, len(items))

	type weighted struct {
		idx    int
		weight int
	}
	var linked []weighted
	for i, item := range items {
		if w := LinkWeight(item, req); w > 0 {
			linked = append(linked, weighted{idx: i, weight: w})
		}
	}
	sort.SliceStable(linked, func(a, b int) bool {
		return linked[a].weight > linked[b].weight
	})
	for _, l := range linked {
		claimed[l.idx] = true
		res.Linked = append(res.Linked, items[l.idx])
	}

	pkg := strings.TrimSpace(req.Package)
	project := strings.TrimSpace(req.Project)
	if len(res.Linked) > 0 {
		top := res.Linked[0]
		if pkg == "" {
			pkg = strings.TrimSpace(top.ItemID)
		}
		if project == "" {
			project = strings.TrimSpace(top.ParentID)
		}
	}
	res.DetectedPackage = pkg
	res.DetectedProject = project

	if pkg != "" {
		for i, item := range items {
			if !claimed[i] && strings.EqualFold(strings.TrimSpace(item.ItemID), pkg) {
				claimed[i] = true
				res.Package = append(res.Package, item)
			}
		}
	}
	if project != "" {
		for i, item := range items {
			if !claimed[i] && strings.EqualFold(strings.TrimSpace(item.ParentID), project) {
				claimed[i] = true
				res.Project = append(res.Project, item)
			}
		}
	}
	for i, item := range items {
		if !claimed[i] {
			res.Other = append(res.Other, item)
		}
	}
	return res
}
