package refresh

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"mailtriage/internal/domain"
	"mailtriage/internal/mailbox"
	"mailtriage/internal/storage/sqlite"
	"mailtriage/internal/triage"
)

// Notifier delivers a triage outcome to people.
type Notifier interface {
	PostOutcome(ctx context.Context, o triage.Outcome) (string, error)
}

// Processor triages every pending inbox message against a fresh snapshot.
type Processor struct {
	DB       *sql.DB
	Mailbox  mailbox.Mailbox
	Engine   *triage.Engine
	Loader   Loader
	Holder   *Holder
	Notifier Notifier // optional
}

// ProcessResult tracks counters for one inbox pass.
type ProcessResult struct {
	Pending        int
	Triaged        int
	Linked         int
	Ambiguous      int
	AlreadyTriaged int
	Errors         []string
}

// Refresh reloads the snapshot and publishes it to the holder.
func (p *Processor) Refresh() (triage.Snapshot, error) {
	snap, err := p.Loader.Load()
	if err != nil {
		return triage.Snapshot{}, err
	}
	if p.Holder != nil {
		p.Holder.Store(snap)
	}
	return snap, nil
}

// ProcessInbox refreshes the snapshot and handles each file in new/. A
// message linked to an existing item is recorded on it, so replies later in
// the same pass thread onto it too.
func (p *Processor) ProcessInbox(ctx context.Context) (ProcessResult, error) {
	var result ProcessResult

	snap, err := p.Refresh()
	if err != nil {
		return result, err
	}
	names, err := p.Mailbox.Pending()
	if err != nil {
		return result, fmt.Errorf("list inbox: %w", err)
	}
	result.Pending = len(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		linked, err := p.processOne(ctx, snap, name, &result)
		if err != nil {
			log.Printf("inbox error file=%s: %v", name, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
		}
		if _, err := p.Mailbox.MarkSeen(name); err != nil {
			log.Printf("inbox mark seen error file=%s: %v", name, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
		}
		if linked {
			items, err := sqlite.ListOpenWorkItems(p.DB)
			if err != nil {
				return result, fmt.Errorf("reload open work items: %w", err)
			}
			snap.Items = items
		}
	}
	if len(names) > 0 {
		log.Printf("inbox processed %s", FormatProcessSummary(result))
	}
	return result, nil
}

func (p *Processor) processOne(ctx context.Context, snap triage.Snapshot, name string, result *ProcessResult) (bool, error) {
	msg, err := p.Mailbox.Read(name)
	if err != nil {
		return false, err
	}

	key := domain.NormalizeMessageID(msg.MessageID)
	if key == "" {
		key = msg.StoreID + "|" + msg.EntryID
	}
	done, err := sqlite.HasTriaged(p.DB, key)
	if err != nil {
		return false, fmt.Errorf("check history: %w", err)
	}
	if done {
		result.AlreadyTriaged++
		return false, nil
	}

	out := p.Engine.Triage(ctx, snap, msg, triage.Hint{})
	if p.Notifier != nil {
		if _, err := p.Notifier.PostOutcome(ctx, out); err != nil {
			log.Printf("inbox notify error file=%s: %v", name, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: notify: %v", name, err))
		}
	}

	rec := triage.Record(out)
	rec.MessageID = key
	if err := sqlite.InsertTriageRecord(p.DB, rec); err != nil {
		return false, fmt.Errorf("record triage: %w", err)
	}
	result.Triaged++
	if out.NeedsDecision() {
		result.Ambiguous++
	}
	if !out.Linked() {
		return false, nil
	}

	result.Linked++
	if err := RecordOnItem(p.DB, out.LinkedItem.ID, msg); err != nil {
		return false, err
	}
	return true, nil
}

// RecordOnItem tracks msg on work item id: its store|entry|message-id triple
// as the newest active message and its conversation id as a linked thread.
func RecordOnItem(db *sql.DB, id string, msg domain.Message) error {
	if domain.NormalizeMessageID(msg.MessageID) != "" {
		if err := sqlite.AppendActiveMessage(db, id, msg.ActiveEntry()); err != nil {
			return fmt.Errorf("append active message to %s: %w", id, err)
		}
	}
	if err := sqlite.LinkThread(db, id, msg.ConversationID); err != nil {
		return fmt.Errorf("link thread to %s: %w", id, err)
	}
	return nil
}

// FormatProcessSummary returns a one-line summary of a ProcessResult.
func FormatProcessSummary(r ProcessResult) string {
	parts := []string{fmt.Sprintf("%d triaged", r.Triaged)}
	if r.Linked > 0 {
		parts = append(parts, fmt.Sprintf("%d linked", r.Linked))
	}
	if r.Ambiguous > 0 {
		parts = append(parts, fmt.Sprintf("%d ambiguous", r.Ambiguous))
	}
	if r.AlreadyTriaged > 0 {
		parts = append(parts, fmt.Sprintf("%d already triaged", r.AlreadyTriaged))
	}
	msg := fmt.Sprintf("%d pending: %s", r.Pending, strings.Join(parts, ", "))
	if len(r.Errors) > 0 {
		msg += fmt.Sprintf("; %d errors", len(r.Errors))
	}
	return msg
}
