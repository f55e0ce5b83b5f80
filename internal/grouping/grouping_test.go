package grouping

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"mailtriage/internal/domain"
)

func ids(items []domain.WorkItem) string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return strings.Join(out, ",")
}

func TestLinkWeight(t *testing.T) {
	item := domain.WorkItem{
		ActiveMessageIDs: []string{"s|1|<m0@x>", "s|2|<m1@x>", "s|3|<m2@x>"},
		LinkedThreadIDs:  []string{"conv-1"},
	}
	tests := []struct {
		name string
		req  Request
		want int
	}{
		{name: "reply to newest", req: Request{InReplyTo: "<m2@x>"}, want: 1020},
		{name: "reply to oldest", req: Request{InReplyTo: "m0@x"}, want: 1000},
		{name: "own id tracked", req: Request{MessageID: "<m1@x>"}, want: 500},
		{name: "conversation", req: Request{ConversationID: "conv-1"}, want: 100},
		{name: "reply wins over conversation", req: Request{InReplyTo: "m1@x", ConversationID: "conv-1"}, want: 1010},
		{name: "unlinked", req: Request{InReplyTo: "zz@x", ConversationID: "conv-2"}, want: 0},
		{name: "blank", req: Request{}, want: 0},
	}
	for _, tt := range tests {
		if got := LinkWeight(item, tt.req); got != tt.want {
			t.Fatalf("%s: LinkWeight = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestGroupBucketsAndDetectedContext(t *testing.T) {
	items := []domain.WorkItem{
		{ID: "conv", ParentID: "P2", ItemID: "K9", LinkedThreadIDs: []string{"conv-1"}},
		{ID: "reply", ParentID: "P1", ItemID: "K1", ActiveMessageIDs: []string{"s|e|r@x"}},
		{ID: "samepkg", ParentID: "P3", ItemID: "k1"},
		{ID: "sameproj", ParentID: "p1", ItemID: "K2"},
		{ID: "other", ParentID: "P4", ItemID: "K4"},
	}
	res := Group(items, Request{InReplyTo: "<r@x>", ConversationID: "conv-1"})

	if got := ids(res.Linked); got != "reply,conv" {
		t.Fatalf("linked = %s", got)
	}
	if res.DetectedPackage != "K1" || res.DetectedProject != "P1" {
		t.Fatalf("detected context = %s/%s", res.DetectedProject, res.DetectedPackage)
	}
	if got := ids(res.Package); got != "samepkg" {
		t.Fatalf("package bucket = %s", got)
	}
	if got := ids(res.Project); got != "sameproj" {
		t.Fatalf("project bucket = %s", got)
	}
	if got := ids(res.Other); got != "other" {
		t.Fatalf("other bucket = %s", got)
	}
}

func TestGroupSuppliedContextWins(t *testing.T) {
	items := []domain.WorkItem{
		{ID: "linked", ParentID: "P1", ItemID: "K1", LinkedThreadIDs: []string{"c"}},
		{ID: "a", ParentID: "P1", ItemID: "K1"},
		{ID: "b", ParentID: "P7", ItemID: "K7"},
	}
	res := Group(items, Request{ConversationID: "c", Package: "k7"})
	if res.DetectedPackage != "k7" || res.DetectedProject != "P1" {
		t.Fatalf("context = %s/%s", res.DetectedProject, res.DetectedPackage)
	}
	if ids(res.Package) != "b" || ids(res.Project) != "a" {
		t.Fatalf("package=%s project=%s", ids(res.Package), ids(res.Project))
	}
}

func TestGroupNoContextSendsEverythingToOther(t *testing.T) {
	items := []domain.WorkItem{
		{ID: "a", ParentID: "P1", ItemID: "K1"},
		{ID: "b", ParentID: "", ItemID: ""},
	}
	res := Group(items, Request{MessageID: "new@x"})
	if len(res.Linked)+len(res.Package)+len(res.Project) != 0 {
		t.Fatalf("expected only other bucket, got %+v", res)
	}
	if ids(res.Other) != "a,b" {
		t.Fatalf("other should keep input order, got %s", ids(res.Other))
	}
	if res.DetectedPackage != "" || res.DetectedProject != "" {
		t.Fatalf("no context should be detected, got %q/%q", res.DetectedProject, res.DetectedPackage)
	}
}

func TestGroupBlankItemFieldsNeverMatchContext(t *testing.T) {
	items := []domain.WorkItem{
		{ID: "linked", ParentID: "P1", ItemID: "", LinkedThreadIDs: []string{"c"}},
		{ID: "blank", ParentID: "", ItemID: ""},
	}
	res := Group(items, Request{ConversationID: "c"})
	if ids(res.Other) != "blank" {
		t.Fatalf("blank item must fall to other, got package=%s project=%s other=%s",
			ids(res.Package), ids(res.Project), ids(res.Other))
	}
}

func TestGroupLinkedOrderIsStableForEqualWeights(t *testing.T) {
	items := []domain.WorkItem{
		{ID: "x", LinkedThreadIDs: []string{"c"}},
		{ID: "y", LinkedThreadIDs: []string{"c"}},
		{ID: "z", ActiveMessageIDs: []string{"s|e|own@x"}},
	}
	res := Group(items, Request{MessageID: "own@x", ConversationID: "c"})
	if got := ids(res.Linked); got != "z,x,y" {
		t.Fatalf("linked = %s", got)
	}
}

func TestGroupPartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pick := func(options ...string) string { return options[rng.Intn(len(options))] }

	for round := 0; round < 200; round++ {
		n := rng.Intn(12)
		items := make([]domain.WorkItem, n)
		for i := range items {
			items[i] = domain.WorkItem{
				ID:               fmt.Sprintf("w%d", i),
				ParentID:         pick("P1", "p1", "P2", ""),
				ItemID:           pick("K1", "k1", "K2", ""),
				LinkedThreadIDs:  []string{pick("c1", "c2", "")},
				ActiveMessageIDs: []string{"s|e|" + pick("m1", "m2", "m3")},
			}
		}
		req := Request{
			MessageID:      pick("m1", "", "m9"),
			InReplyTo:      pick("<m2>", "", "m3"),
			ConversationID: pick("c1", "", "c3"),
			Package:        pick("", "K1"),
			Project:        pick("", "P2"),
		}
		res := Group(items, req)

		seen := make(map[string]int)
		for _, bucket := range res.Buckets() {
			for _, it := range bucket {
				seen[it.ID]++
			}
		}
		if len(seen) != n || res.Len() != n {
			t.Fatalf("round %d: union has %d ids, total %d, want %d", round, len(seen), res.Len(), n)
		}
		for id, count := range seen {
			if count != 1 {
				t.Fatalf("round %d: %s appears %d times", round, id, count)
			}
		}
	}
}

func TestGroupDoesNotMutateInput(t *testing.T) {
	items := []domain.WorkItem{
		{ID: "b", LinkedThreadIDs: []string{"c"}},
		{ID: "a", ActiveMessageIDs: []string{"s|e|r"}},
	}
	Group(items, Request{InReplyTo: "r", ConversationID: "c"})
	if items[0].ID != "b" || items[1].ID != "a" {
		t.Fatalf("input order changed: %s", ids(items))
	}
}

func TestOptionsTagsEachBucket(t *testing.T) {
	res := domain.GroupingResult{
		Linked:  []domain.WorkItem{{ID: "1", ParentID: "P1", ItemID: "K1", Title: "Turbine bolts", Status: "open"}},
		Package: []domain.WorkItem{{ID: "2", ItemID: "K1", Title: "Spare parts"}},
		Project: []domain.WorkItem{{ID: "3", ParentID: "P1"}},
		Other:   []domain.WorkItem{{ID: "4", Title: "Misc"}},
	}
	opts := Options(res)
	want := []string{
		"[Linked] P1/K1 Turbine bolts (open)",
		"[Package] K1 Spare parts",
		"[Project] P1 3",
		"[Other] Misc",
	}
	if len(opts) != len(want) {
		t.Fatalf("got %d options, want %d", len(opts), len(want))
	}
	for i, o := range opts {
		if o.Label != want[i] {
			t.Fatalf("option %d label = %q, want %q", i, o.Label, want[i])
		}
	}
	if opts[2].Bucket != domain.BucketProject || opts[2].ItemID != "3" {
		t.Fatalf("unexpected option: %+v", opts[2])
	}
}
