package grouping

import (
	"fmt"
	"strings"

	"mailtriage/internal/domain"
)

// Option is one entry of a rendered selection list.
type Option struct {
	Bucket domain.Bucket
	ItemID string
	Label  string
}

// Tag is the label prefix for a bucket, e.g. "[Linked]".
func Tag(b domain.Bucket) string {
	return "[" + b.String() + "]"
}

// ItemLabel renders one work item without its bucket tag.
func ItemLabel(item domain.WorkItem) string {
	var parts []string
	if item.ParentID != "" || item.ItemID != "" {
		parts = append(parts, strings.Trim(item.ParentID+"/"+item.ItemID, "/"))
	}
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = item.ID
	}
	parts = append(parts, title)
	label := strings.Join(parts, " ")
	if s := strings.TrimSpace(item.Status); s != "" {
		label = fmt.Sprintf("%s (%s)", label, s)
	}
	return label
}

// Options flattens a grouping result into tagged selection entries, keeping
// bucket order.
func Options(res domain.GroupingResult) []Option {
	out := make([]Option, 0, res.Len())
	for b, items := range res.Buckets() {
		bucket := domain.Bucket(b)
		for _, item := range items {
			out = append(out, Option{
				Bucket: bucket,
				ItemID: item.ID,
				Label:  Tag(bucket) + " " + ItemLabel(item),
			})
		}
	}
	return out
}
