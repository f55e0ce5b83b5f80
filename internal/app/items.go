package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"mailtriage/internal/domain"
	"mailtriage/internal/rules"
)

// itemColumns maps accepted header names to work item fields.
var itemColumns = map[string]string{
	"id":                 "id",
	"work_item_id":       "id",
	"project":            "parent",
	"parent_id":          "parent",
	"package":            "item",
	"item_id":            "item",
	"title":              "title",
	"status":             "status",
	"assignee":           "assignee",
	"threads":            "threads",
	"linked_thread_ids":  "threads",
	"messages":           "messages",
	"active_message_ids": "messages",
}

// LoadItemsFile reads work items from a .csv or .tsv file with a header row.
// Multi-value columns are ';'-separated. Rows with neither id nor title are
// skipped; rows without an id get a new UUID.
func LoadItemsFile(path string) ([]domain.WorkItem, int, error) {
	var delim rune
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		delim = ','
	case ".tsv":
		delim = '\t'
	default:
		return nil, 0, fmt.Errorf("%w: %s", rules.ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open item file: %w", err)
	}
	defer f.Close()

	rows, err := rules.ReadRows(f, delim)
	if err != nil {
		return nil, 0, err
	}
	items, skipped := ItemsFromRows(rows)
	return items, skipped, nil
}

// ItemsFromRows converts header-led rows into work items.
func ItemsFromRows(rows [][]string) ([]domain.WorkItem, int) {
	if len(rows) == 0 {
		return nil, 0
	}
	fields := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		fields[i] = itemColumns[key]
	}

	var items []domain.WorkItem
	skipped := 0
	for _, row := range rows[1:] {
		var item domain.WorkItem
		for i, v := range row {
			if i >= len(fields) {
				break
			}
			v = strings.TrimSpace(v)
			switch fields[i] {
			case "id":
				item.ID = v
			case "parent":
				item.ParentID = v
			case "item":
				item.ItemID = v
			case "title":
				item.Title = v
			case "status":
				item.Status = v
			case "assignee":
				item.Assignee = v
			case "threads":
				item.LinkedThreadIDs = domain.SplitMulti(v)
			case "messages":
				item.ActiveMessageIDs = domain.SplitMulti(v)
			}
		}
		if item.ID == "" && item.Title == "" {
			skipped++
			continue
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.Status = domain.NormalizeStatus(item.Status)
		items = append(items, item)
	}
	return items, skipped
}
