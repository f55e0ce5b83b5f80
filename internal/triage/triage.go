// Package triage runs the per-message flow: link the message to an existing
// work item, suggest a project and package for a new one, and build the
// categorized selection list.
package triage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"mailtriage/internal/classify"
	"mailtriage/internal/domain"
	"mailtriage/internal/grouping"
	"mailtriage/internal/rules"
	"mailtriage/internal/thread"
)

// Snapshot is the read-only state one triage call works on.
type Snapshot struct {
	Rules    rules.Store
	Items    []domain.WorkItem
	LoadedAt time.Time
}

// Summarizer proposes a title for a new work item.
type Summarizer interface {
	Title(ctx context.Context, msg domain.Message) (string, error)
}

// Hint is optional package/project context supplied by the caller.
type Hint struct {
	Package string
	Project string
}

type Outcome struct {
	Message        domain.Message
	LinkedItem     domain.WorkItem
	MatchKind      thread.MatchKind
	Classification domain.ClassificationResult
	Grouping       domain.GroupingResult
	ProposedTitle  string
}

// Linked reports whether the message was matched to an existing item.
func (o Outcome) Linked() bool {
	return o.MatchKind != thread.NoMatch
}

// NeedsDecision reports whether a person has to pick the project or package.
func (o Outcome) NeedsDecision() bool {
	return !o.Linked() && o.Classification.IsAmbiguous
}

type Engine struct {
	opts       classify.Options
	summarizer Summarizer
}

// New builds an Engine. summarizer may be nil, in which case new-item titles
// fall back to the message subject.
func New(opts classify.Options, summarizer Summarizer) *Engine {
	return &Engine{opts: opts, summarizer: summarizer}
}

// Triage runs thread matching, classification and grouping over snap.
func (e *Engine) Triage(ctx context.Context, snap Snapshot, msg domain.Message, hint Hint) Outcome {
	out := Outcome{Message: msg}

	out.LinkedItem, out.MatchKind = thread.Match(snap.Items, thread.IdentityOf(msg))
	out.Classification = classify.New(snap.Rules, e.opts).ClassifyMessage(msg)

	req := grouping.RequestFromMessage(msg)
	req.Package = hint.Package
	req.Project = hint.Project
	out.Grouping = grouping.Group(snap.Items, req)

	if !out.Linked() {
		out.ProposedTitle = e.proposeTitle(ctx, msg)
	}

	log.Printf("triage message=%s linked=%s via=%s parent=%s item=%s ambiguous=%v buckets=%d/%d/%d/%d",
		domain.NormalizeMessageID(msg.MessageID), out.LinkedItem.ID, out.MatchKind,
		out.Classification.SuggestedParentID, out.Classification.SuggestedItemID, out.Classification.IsAmbiguous,
		len(out.Grouping.Linked), len(out.Grouping.Package), len(out.Grouping.Project), len(out.Grouping.Other))
	return out
}

func (e *Engine) proposeTitle(ctx context.Context, msg domain.Message) string {
	fallback := strings.TrimSpace(msg.Subject)
	if fallback == "" {
		fallback = "(no subject)"
	}
	if e.summarizer == nil {
		return fallback
	}
	title, err := e.summarizer.Title(ctx, msg)
	if err != nil {
		log.Printf("triage title fallback message=%s err=%v", domain.NormalizeMessageID(msg.MessageID), err)
		return fallback
	}
	if title = strings.TrimSpace(title); title == "" {
		return fallback
	}
	return title
}

// Record converts an outcome into its audit entry.
func Record(o Outcome) domain.TriageRecord {
	return domain.TriageRecord{
		MessageID:         domain.NormalizeMessageID(o.Message.MessageID),
		Subject:           o.Message.Subject,
		Sender:            o.Message.Sender,
		LinkedItemID:      o.LinkedItem.ID,
		MatchKind:         o.MatchKind.String(),
		SuggestedParentID: o.Classification.SuggestedParentID,
		SuggestedItemID:   o.Classification.SuggestedItemID,
		Ambiguous:         o.Classification.IsAmbiguous,
		AmbiguityReason:   o.Classification.AmbiguityReason,
	}
}

// NewWorkItem pre-fills a work item from an unlinked outcome.
func NewWorkItem(o Outcome, id string) domain.WorkItem {
	item := domain.WorkItem{
		ID:       id,
		ParentID: o.Classification.SuggestedParentID,
		ItemID:   o.Classification.SuggestedItemID,
		Title:    o.ProposedTitle,
		Status:   domain.NormalizeStatus(""),
	}
	if conv := strings.TrimSpace(o.Message.ConversationID); conv != "" {
		item.LinkedThreadIDs = []string{conv}
	}
	if domain.NormalizeMessageID(o.Message.MessageID) != "" {
		item.ActiveMessageIDs = []string{o.Message.ActiveEntry()}
	}
	return item
}

// FormatOutcome renders an outcome for terminal output.
func FormatOutcome(o Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message: %s\n", strings.TrimSpace(o.Message.Subject))
	if o.Linked() {
		fmt.Fprintf(&b, "Linked item: %s (%s match) %s\n", o.LinkedItem.ID, o.MatchKind, grouping.ItemLabel(o.LinkedItem))
	} else {
		b.WriteString("Linked item: none\n")
		fmt.Fprintf(&b, "Proposed title: %s\n", o.ProposedTitle)
	}

	c := o.Classification
	item := c.SuggestedItemID
	if item == "" {
		item = "-"
	}
	fmt.Fprintf(&b, "Suggested project: %s\nSuggested package: %s\n", c.SuggestedParentID, item)
	if c.IsAmbiguous {
		fmt.Fprintf(&b, "Ambiguous: %s\n", c.AmbiguityReason)
		for _, cand := range c.Candidates {
			fmt.Fprintf(&b, "  - %s %s (score %d)\n", cand.Type, cand.Name, cand.Score)
		}
	}

	g := o.Grouping
	if g.DetectedProject != "" || g.DetectedPackage != "" {
		fmt.Fprintf(&b, "Context: project=%s package=%s\n", g.DetectedProject, g.DetectedPackage)
	}
	opts := grouping.Options(g)
	if len(opts) == 0 {
		b.WriteString("Open items: none\n")
		return b.String()
	}
	b.WriteString("Open items:\n")
	for _, opt := range opts {
		fmt.Fprintf(&b, "  %s\n", opt.Label)
	}
	return b.String()
}
