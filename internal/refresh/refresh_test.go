package refresh

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mailtriage/internal/classify"
	"mailtriage/internal/domain"
	"mailtriage/internal/mailbox"
	"mailtriage/internal/storage/sqlite"
	"mailtriage/internal/triage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "refresh-test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeNotifier struct {
	outcomes []triage.Outcome
	err      error
}

func (f *fakeNotifier) PostOutcome(ctx context.Context, o triage.Outcome) (string, error) {
	f.outcomes = append(f.outcomes, o)
	return "1.0", f.err
}

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := sqlite.ReplaceRules(db, []domain.Rule{
		{Scope: domain.ScopeParent, TargetID: "P1", MatchText: "turbine", Priority: 1},
		{Scope: domain.ScopeItem, ParentID: "P1", TargetID: "K1", MatchText: "bolt", Priority: 2},
	}); err != nil {
		t.Fatalf("ReplaceRules failed: %v", err)
	}
	if _, err := sqlite.UpsertWorkItems(db, []domain.WorkItem{
		{ID: "W1", ParentID: "P1", ItemID: "K1", Title: "Bolt order", Status: "open",
			ActiveMessageIDs: []string{"inbox|0|first@x"}, LinkedThreadIDs: []string{"root@x"}},
		{ID: "W2", ParentID: "P2", Title: "Closed thing", Status: "done"},
	}); err != nil {
		t.Fatalf("UpsertWorkItems failed: %v", err)
	}
}

func newProcessor(t *testing.T, db *sql.DB, n Notifier) *Processor {
	t.Helper()
	mb, err := mailbox.Open(filepath.Join(t.TempDir(), "inbox"))
	if err != nil {
		t.Fatalf("open mailbox: %v", err)
	}
	return &Processor{
		DB:       db,
		Mailbox:  mb,
		Engine:   triage.New(classify.Options{}, nil),
		Loader:   Loader{DB: db},
		Holder:   &Holder{},
		Notifier: n,
	}
}

func eml(id, inReplyTo, subject string) []byte {
	s := "From: jane@acme.com\r\nSubject: " + subject + "\r\nMessage-ID: <" + id + ">\r\n"
	if inReplyTo != "" {
		s += "In-Reply-To: <" + inReplyTo + ">\r\n"
	}
	return []byte(s + "\r\nbody\r\n")
}

func TestLoaderFromDBAndFile(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)

	snap, err := Loader{DB: db}.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Rules.Len() != 2 || len(snap.Items) != 1 || snap.Items[0].ID != "W1" {
		t.Fatalf("unexpected snapshot rules=%d items=%v", snap.Rules.Len(), snap.Items)
	}

	path := filepath.Join(t.TempDir(), "rules.csv")
	csv := "scope,parent,target,text,sender,priority\nPARENT,,P9,pump,,1\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	snap, err = Loader{DB: db, RulesPath: path}.Load()
	if err != nil {
		t.Fatalf("load from file: %v", err)
	}
	if snap.Rules.Len() != 1 || snap.Rules.Rules()[0].TargetID != "P9" {
		t.Fatalf("expected file rules, got %+v", snap.Rules.Rules())
	}

	if _, err := (Loader{DB: db, RulesPath: filepath.Join(t.TempDir(), "rules.json")}).Load(); err == nil {
		t.Fatal("expected unsupported rule file to fail")
	}
}

func TestProcessInboxLinksRepliesAndRecordsHistory(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	notifier := &fakeNotifier{}
	p := newProcessor(t, db, notifier)

	mustDeliver(t, p.Mailbox, "1.eml", eml("second@x", "first@x", "RE: bolts"))
	mustDeliver(t, p.Mailbox, "2.eml", eml("third@x", "second@x", "RE: RE: bolts"))
	mustDeliver(t, p.Mailbox, "3.eml", eml("new@x", "", "turbine noise"))

	result, err := p.ProcessInbox(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Pending != 3 || result.Triaged != 3 || result.Linked != 2 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(notifier.outcomes) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(notifier.outcomes))
	}
	if !notifier.outcomes[1].Linked() || notifier.outcomes[1].LinkedItem.ID != "W1" {
		t.Fatal("reply to a reply should thread onto W1 within the same pass")
	}
	if notifier.outcomes[2].Linked() || notifier.outcomes[2].Classification.SuggestedParentID != "P1" {
		t.Fatalf("unexpected new-message outcome %+v", notifier.outcomes[2].Classification)
	}

	item, err := sqlite.GetWorkItemByID(db, "W1")
	if err != nil {
		t.Fatalf("get W1: %v", err)
	}
	want := []string{"inbox|0|first@x", "inbox|1.eml|second@x", "inbox|2.eml|third@x"}
	if len(item.ActiveMessageIDs) != len(want) {
		t.Fatalf("unexpected active messages %v", item.ActiveMessageIDs)
	}
	for i := range want {
		if item.ActiveMessageIDs[i] != want[i] {
			t.Fatalf("active[%d] = %q, want %q", i, item.ActiveMessageIDs[i], want[i])
		}
	}

	if pending, _ := p.Mailbox.Pending(); len(pending) != 0 {
		t.Fatalf("expected inbox drained, got %v", pending)
	}
	if p.Holder.Load().Rules.Len() != 2 {
		t.Fatal("holder should carry the refreshed snapshot")
	}

	// The same message delivered again is skipped.
	mustDeliver(t, p.Mailbox, "4.eml", eml("new@x", "", "turbine noise"))
	result, err = p.ProcessInbox(context.Background())
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if result.AlreadyTriaged != 1 || result.Triaged != 0 {
		t.Fatalf("unexpected second result %+v", result)
	}

	records, err := sqlite.GetRecentTriageRecords(db, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(records))
	}
}

func TestProcessInboxKeepsGoingOnNotifyError(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	p := newProcessor(t, db, &fakeNotifier{err: errors.New("slack down")})
	mustDeliver(t, p.Mailbox, "1.eml", eml("a@x", "", "hello"))
	mustDeliver(t, p.Mailbox, "2.eml", []byte("not a message"))

	result, err := p.ProcessInbox(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Triaged != 1 || len(result.Errors) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if pending, _ := p.Mailbox.Pending(); len(pending) != 0 {
		t.Fatalf("unparseable files should still leave new/, got %v", pending)
	}
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("*/5 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base := time.Date(2026, 1, 5, 9, 1, 0, 0, time.UTC)
	if next := sched.Next(base); !next.Equal(time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %s", next)
	}
	for _, bad := range []string{"", "not cron", "* * * *"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestSchedulerRunProcessesOnStartup(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	p := newProcessor(t, db, nil)
	mustDeliver(t, p.Mailbox, "1.eml", eml("second@x", "first@x", "RE: bolts"))

	sched, err := ParseSchedule("0 0 1 1 *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Scheduler{Schedule: sched, Location: time.UTC, Processor: p}.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		entries, _ := os.ReadDir(p.Mailbox.CurDir())
		if len(entries) == 1 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("startup pass did not process the inbox")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}
	item, err := sqlite.GetWorkItemByID(db, "W1")
	if err != nil {
		t.Fatalf("get W1: %v", err)
	}
	if len(item.ActiveMessageIDs) != 2 {
		t.Fatalf("expected reply recorded on W1, got %v", item.ActiveMessageIDs)
	}
}

func TestFormatProcessSummary(t *testing.T) {
	got := FormatProcessSummary(ProcessResult{Pending: 4, Triaged: 3, Linked: 1, AlreadyTriaged: 1, Errors: []string{"x"}})
	want := "4 pending: 3 triaged, 1 linked, 1 already triaged; 1 errors"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func mustDeliver(t *testing.T, mb mailbox.Mailbox, name string, data []byte) {
	t.Helper()
	if _, err := mb.Deliver(name, data); err != nil {
		t.Fatalf("deliver %s: %v", name, err)
	}
}
