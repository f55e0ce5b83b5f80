package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mailtriage/internal/domain"
	"mailtriage/internal/storage/sqlite"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app-test.db")
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("RULES_PATH", "")
	t.Setenv("INBOX_DIR", "")
	t.Setenv("SLACK_BOT_TOKEN", "")
	t.Setenv("SLACK_CHANNEL_ID", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("CLASSIFIER_MODE", "")
	t.Setenv("CLAMP_PRIORITY_BONUS", "")
	t.Setenv("RANDOM_PARENT", "")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("REFRESH_SCHEDULE", "")
	t.Setenv("EXTERNAL_HTTP_TIMEOUT_SECONDS", "")
	t.Setenv("TIMEZONE", "UTC")
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := Run(args, &out); err != nil {
		t.Fatalf("Run(%v) failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCommandFlow(t *testing.T) {
	dir := setupEnv(t)

	rulesPath := writeFile(t, filepath.Join(dir, "rules.csv"),
		"scope,parent_id,target_id,match_text,match_sender,priority\n"+
			"PARENT,,P1,turbine,,1\n"+
			"ITEM,P1,K1,bolt,,2\n"+
			"ITEM,P1\n")
	if got := run(t, "import-rules", rulesPath); !strings.Contains(got, "Imported 2 rules") || !strings.Contains(got, "(1 rows skipped)") {
		t.Fatalf("unexpected import-rules output %q", got)
	}

	itemsPath := writeFile(t, filepath.Join(dir, "items.csv"),
		"id,project,package,title,status,threads,messages\n"+
			"W1,P1,K1,Bolt order,new,conv-1,inbox|1|first@x\n"+
			"W2,P2,,Gearbox,wip,,\n"+
			",,,,,,\n")
	if got := run(t, "import-items", itemsPath); !strings.Contains(got, "Imported 2 work items") {
		t.Fatalf("unexpected import-items output %q", got)
	}

	got := run(t, "triage", "--subject", "RE: bolts", "--in-reply-to", "<first@x>", "--message-id", "<second@x>", "--create")
	for _, want := range []string{"Linked item: W1 (reply match)", "[Linked] P1/K1 Bolt order (open)", "Recorded message on W1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("triage output missing %q:\n%s", want, got)
		}
	}

	got = run(t, "triage", "--subject", "turbine noise", "--from", "jane@acme.com", "--message-id", "new@x", "--no-llm", "--create")
	for _, want := range []string{"Linked item: none", "Proposed title: turbine noise", "Suggested project: P1", "Created work item"} {
		if !strings.Contains(got, want) {
			t.Fatalf("triage output missing %q:\n%s", want, got)
		}
	}

	if got := run(t, "history"); !strings.Contains(got, "linked W1 (reply)") || !strings.Contains(got, "new P1") {
		t.Fatalf("unexpected history output %q", got)
	}

	if got := run(t, "set-status", "W1", "--status", "closed"); !strings.Contains(got, "W1 is now closed") {
		t.Fatalf("unexpected set-status output %q", got)
	}

	db, err := sqlite.InitDB(os.Getenv("DB_PATH"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	item, err := sqlite.GetWorkItemByID(db, "W1")
	if err != nil {
		t.Fatalf("get W1: %v", err)
	}
	if len(item.ActiveMessageIDs) != 2 || item.ActiveMessageIDs[1] != "cli||second@x" {
		t.Fatalf("unexpected active messages %v", item.ActiveMessageIDs)
	}
	open, err := sqlite.ListOpenWorkItems(db)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected W2 plus the created item to stay open, got %d", len(open))
	}
}

func TestAddItemAndTriageFromEML(t *testing.T) {
	dir := setupEnv(t)

	if got := run(t, "add-item", "--id", "W9", "--title", "Pump quote", "--project", "P9", "--thread", "root@acme.com"); !strings.Contains(got, "Saved work item W9") {
		t.Fatalf("unexpected add-item output %q", got)
	}
	eml := writeFile(t, filepath.Join(dir, "reply.eml"),
		"From: bob@example.com\r\nSubject: RE: pump\r\nMessage-ID: <r1@example.com>\r\nReferences: <root@acme.com>\r\n\r\nok\r\n")
	got := run(t, "triage", "--eml", eml)
	if !strings.Contains(got, "Linked item: W9 (conversation match)") {
		t.Fatalf("expected conversation match:\n%s", got)
	}
}

func TestRunErrors(t *testing.T) {
	setupEnv(t)
	var out bytes.Buffer
	if err := Run([]string{"bogus"}, &out); err == nil {
		t.Fatal("expected unknown command error")
	}
	if !strings.Contains(out.String(), "import-rules") {
		t.Fatalf("usage should list commands, got %q", out.String())
	}
	if err := Run([]string{"add-item"}, &out); err == nil {
		t.Fatal("expected add-item without --title to fail")
	}
	if err := Run([]string{"triage"}, &out); err == nil {
		t.Fatal("expected triage without input to fail")
	}
	if err := Run([]string{"import-rules"}, &out); err == nil {
		t.Fatal("expected import-rules without a file to fail")
	}
	if err := Run([]string{"serve"}, &out); err == nil {
		t.Fatal("expected serve without inbox_dir to fail")
	}
	out.Reset()
	if err := Run(nil, &out); err != nil || !strings.Contains(out.String(), "usage:") {
		t.Fatalf("expected usage, got %v %q", err, out.String())
	}
}

func TestItemsFromRows(t *testing.T) {
	rows := [][]string{
		{"\ufeffID", "Parent_ID", "Item_ID", "Title", "Status", "Assignee", "Linked_Thread_IDs", "Active_Message_IDs", "extra"},
		{"W1", "P1", "K1", "Bolts", "Completed", "alice", "a; b", "s|e|m1;s|e|m2", "ignored"},
		{"", "P2", "", "No id yet", "", "", "", ""},
		{"", "", ""},
	}
	items, skipped := ItemsFromRows(rows)
	if skipped != 1 || len(items) != 2 {
		t.Fatalf("expected 2 items and 1 skipped, got %d/%d", len(items), skipped)
	}
	w1 := items[0]
	if w1.ID != "W1" || w1.Status != "done" || w1.Assignee != "alice" {
		t.Fatalf("unexpected first item %+v", w1)
	}
	if len(w1.LinkedThreadIDs) != 2 || w1.LinkedThreadIDs[1] != "b" || len(w1.ActiveMessageIDs) != 2 {
		t.Fatalf("unexpected multi-value fields %+v", w1)
	}
	if items[1].ID == "" || items[1].Status != "open" {
		t.Fatalf("expected generated id and open status, got %+v", items[1])
	}
	if items, _ := ItemsFromRows(nil); items != nil {
		t.Fatal("expected no items from no rows")
	}
}

func TestLoadItemsFileTSVKeepsBlankCells(t *testing.T) {
	content := "ID\tParent_ID\tItem_ID\tTitle\tStatus\tAssignee\n" +
		"W1\t\t\tPump check\t\tbob\n"
	path := writeFile(t, filepath.Join(t.TempDir(), "items.tsv"), content)
	items, skipped, err := LoadItemsFile(path)
	if err != nil {
		t.Fatalf("LoadItemsFile: %v", err)
	}
	if skipped != 0 || len(items) != 1 {
		t.Fatalf("expected one item, got %d (skipped %d)", len(items), skipped)
	}
	w := items[0]
	if w.ParentID != "" || w.Title != "Pump check" || w.Status != "open" || w.Assignee != "bob" {
		t.Fatalf("tsv columns shifted: %+v", w)
	}
}

func TestLoadItemsFileRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, filepath.Join(t.TempDir(), "items.json"), "[]")
	if _, _, err := LoadItemsFile(path); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestFormatRecord(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	linked := FormatRecord(domain.TriageRecord{Subject: "RE: x", LinkedItemID: "W1", MatchKind: "reply", TriagedAt: at}, time.UTC)
	if !strings.HasPrefix(linked, "2026-03-02 09:30") || !strings.HasSuffix(linked, "linked W1 (reply)") {
		t.Fatalf("unexpected linked line %q", linked)
	}
	amb := FormatRecord(domain.TriageRecord{Subject: "pump", SuggestedParentID: "Random", Ambiguous: true, AmbiguityReason: "tie", TriagedAt: at}, nil)
	if !strings.Contains(amb, "new Random") || !strings.HasSuffix(amb, "[ambiguous: tie]") {
		t.Fatalf("unexpected ambiguous line %q", amb)
	}
}
