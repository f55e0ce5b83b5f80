package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"mailtriage/internal/domain"
	"mailtriage/internal/mailbox"
	"mailtriage/internal/refresh"
	"mailtriage/internal/rules"
	"mailtriage/internal/storage/sqlite"
	"mailtriage/internal/triage"
)

func runImportRules(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("import-rules", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireArg(fs, "rule file")
	if err != nil {
		return err
	}

	store, stats, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	e, err := openEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := sqlite.ReplaceRules(e.db, store.Rules())
	if err != nil {
		return fmt.Errorf("store rules: %w", err)
	}
	log.Printf("import-rules path=%s rows=%d loaded=%d skipped=%d", path, stats.Rows, stats.Loaded, stats.Skipped)
	fmt.Fprintf(out, "Imported %d rules from %s (%d rows skipped)\n", n, path, stats.Skipped)
	return nil
}

func runImportItems(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("import-items", out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := requireArg(fs, "item file")
	if err != nil {
		return err
	}

	items, skipped, err := LoadItemsFile(path)
	if err != nil {
		return err
	}
	e, err := openEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := sqlite.UpsertWorkItems(e.db, items)
	if err != nil {
		return fmt.Errorf("store work items: %w", err)
	}
	log.Printf("import-items path=%s written=%d skipped=%d", path, n, skipped)
	fmt.Fprintf(out, "Imported %d work items from %s (%d rows skipped)\n", n, path, skipped)
	return nil
}

func runAddItem(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("add-item", out)
	id := fs.String("id", "", "work item id (default: a new UUID)")
	project := fs.String("project", "", "parent project id")
	pkg := fs.String("package", "", "package id")
	title := fs.String("title", "", "title (required)")
	status := fs.String("status", "open", "status")
	assignee := fs.String("assignee", "", "assignee: Slack id, email or name")
	threads := fs.StringSlice("thread", nil, "linked conversation id (repeatable)")
	messages := fs.StringSlice("message", nil, "tracked store|entry|message-id (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*title) == "" {
		return fmt.Errorf("add-item: --title is required")
	}

	e, err := openEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	item := domain.WorkItem{
		ID:               strings.TrimSpace(*id),
		ParentID:         strings.TrimSpace(*project),
		ItemID:           strings.TrimSpace(*pkg),
		Title:            strings.TrimSpace(*title),
		Status:           domain.NormalizeStatus(*status),
		Assignee:         strings.TrimSpace(*assignee),
		LinkedThreadIDs:  trimAll(*threads),
		ActiveMessageIDs: trimAll(*messages),
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := sqlite.UpsertWorkItem(e.db, item); err != nil {
		return fmt.Errorf("store work item: %w", err)
	}
	log.Printf("add-item id=%s parent=%s item=%s", item.ID, item.ParentID, item.ItemID)
	fmt.Fprintf(out, "Saved work item %s\n", item.ID)
	return nil
}

func runSetStatus(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("set-status", out)
	status := fs.String("status", "done", "new status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := requireArg(fs, "work item id")
	if err != nil {
		return err
	}

	e, err := openEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	normalized := domain.NormalizeStatus(*status)
	if err := sqlite.UpdateWorkItemStatus(e.db, id, normalized); err != nil {
		return err
	}
	fmt.Fprintf(out, "Work item %s is now %s\n", id, normalized)
	return nil
}

func runTriage(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("triage", out)
	emlPath := fs.String("eml", "", "read the message from an RFC 5322 file")
	subject := fs.String("subject", "", "message subject")
	body := fs.String("body", "", "message body")
	from := fs.String("from", "", "sender address")
	to := fs.String("to", "", "recipients, ';'-separated")
	messageID := fs.String("message-id", "", "Message-ID")
	inReplyTo := fs.String("in-reply-to", "", "In-Reply-To")
	conversation := fs.String("conversation", "", "conversation id")
	pkg := fs.String("package", "", "package context for grouping")
	project := fs.String("project", "", "project context for grouping")
	notify := fs.Bool("notify", false, "post the outcome to Slack")
	create := fs.Bool("create", false, "create a work item when unlinked, or record the message on the linked item")
	noLLM := fs.Bool("no-llm", false, "use the subject as the proposed title")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var msg domain.Message
	if *emlPath != "" {
		parsed, err := readEML(*emlPath)
		if err != nil {
			return err
		}
		msg = parsed
	} else {
		msg = domain.Message{
			Subject:        *subject,
			Body:           *body,
			Sender:         strings.ToLower(strings.TrimSpace(*from)),
			To:             domain.ParseRecipients(*to),
			MessageID:      domain.NormalizeMessageID(*messageID),
			InReplyTo:      domain.NormalizeMessageID(*inReplyTo),
			ConversationID: strings.TrimSpace(*conversation),
			StoreID:        "cli",
		}
	}
	if msg.Subject == "" && msg.Body == "" && msg.Sender == "" && msg.InReplyTo == "" && msg.ConversationID == "" {
		return fmt.Errorf("triage: nothing to triage, pass --eml or message flags")
	}

	e, err := openEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	snap, err := e.loader().Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	outcome := e.engine(!*noLLM).Triage(ctx, snap, msg, triage.Hint{Package: *pkg, Project: *project})
	fmt.Fprint(out, triage.FormatOutcome(outcome))

	rec := triage.Record(outcome)
	if rec.MessageID == "" {
		rec.MessageID = "cli|" + uuid.NewString()
	}
	if err := sqlite.InsertTriageRecord(e.db, rec); err != nil {
		return fmt.Errorf("record triage: %w", err)
	}

	if *create {
		if outcome.Linked() {
			if err := refresh.RecordOnItem(e.db, outcome.LinkedItem.ID, msg); err != nil {
				return err
			}
			fmt.Fprintf(out, "Recorded message on %s\n", outcome.LinkedItem.ID)
		} else {
			item := triage.NewWorkItem(outcome, uuid.NewString())
			if err := sqlite.UpsertWorkItem(e.db, item); err != nil {
				return fmt.Errorf("store work item: %w", err)
			}
			fmt.Fprintf(out, "Created work item %s\n", item.ID)
		}
	}

	if *notify {
		n := e.notifier()
		if n == nil {
			return fmt.Errorf("triage: --notify needs slack_bot_token and slack_channel_id")
		}
		if _, err := n.PostOutcome(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}

func readEML(path string) (domain.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Message{}, err
	}
	defer f.Close()
	msg, err := mailbox.Parse(f, "file", filepath.Base(path))
	if err != nil {
		return domain.Message{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return msg, nil
}

func runHistory(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("history", out)
	since := fs.Duration("since", 7*24*time.Hour, "how far back to look")
	limit := fs.Int("limit", 20, "maximum records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	records, err := sqlite.GetRecentTriageRecords(e.db, time.Now().Add(-*since), *limit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No triage history.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintln(out, FormatRecord(r, e.cfg.Location))
	}
	return nil
}

// FormatRecord renders one history line.
func FormatRecord(r domain.TriageRecord, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	target := "new " + r.SuggestedParentID
	if r.SuggestedItemID != "" {
		target += "/" + r.SuggestedItemID
	}
	if r.LinkedItemID != "" {
		target = fmt.Sprintf("linked %s (%s)", r.LinkedItemID, r.MatchKind)
	}
	line := fmt.Sprintf("%s  %-40s  %s", r.TriagedAt.In(loc).Format("2006-01-02 15:04"), r.Subject, target)
	if r.Ambiguous {
		line += "  [ambiguous: " + r.AmbiguityReason + "]"
	}
	return line
}

func runServe(args []string, out io.Writer) error {
	fs, configPath := newFlagSet("serve", out)
	watch := fs.Bool("watch", true, "also process the inbox as soon as new mail arrives")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(*configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	if strings.TrimSpace(e.cfg.InboxDir) == "" {
		return fmt.Errorf("serve: inbox_dir is not configured")
	}
	mb, err := mailbox.Open(e.cfg.InboxDir)
	if err != nil {
		return err
	}
	sched, err := refresh.ParseSchedule(e.cfg.RefreshSchedule)
	if err != nil {
		return err
	}

	p := &refresh.Processor{
		DB:      e.db,
		Mailbox: mb,
		Engine:  e.engine(true),
		Loader:  e.loader(),
		Holder:  &refresh.Holder{},
	}
	if n := e.notifier(); n != nil {
		p.Notifier = n
	} else {
		log.Println("Slack not configured; outcomes are only logged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Serving inbox %s (cron: %s, watch=%v)", mb.Root, e.cfg.RefreshSchedule, *watch)
	return refresh.Scheduler{
		Schedule:  sched,
		Location:  e.cfg.Location,
		Processor: p,
		Watch:     *watch,
	}.Run(ctx)
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
