package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mailtriage/internal/domain"
	"mailtriage/internal/rules"
)

var ErrNotFound = errors.New("work item not found")

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS work_items (
		id                 TEXT PRIMARY KEY,
		parent_id          TEXT DEFAULT '',
		item_id            TEXT DEFAULT '',
		title              TEXT DEFAULT '',
		status             TEXT DEFAULT 'open',
		assignee           TEXT DEFAULT '',
		linked_thread_ids  TEXT DEFAULT '',
		active_message_ids TEXT DEFAULT '',
		created_at         DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status);

	CREATE TABLE IF NOT EXISTS rule_rows (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		scope        TEXT NOT NULL,
		parent_id    TEXT DEFAULT '',
		target_id    TEXT NOT NULL,
		match_text   TEXT DEFAULT '',
		match_sender TEXT DEFAULT '',
		priority     TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS triage_history (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id          TEXT NOT NULL,
		subject             TEXT DEFAULT '',
		sender              TEXT DEFAULT '',
		linked_item_id      TEXT DEFAULT '',
		match_kind          TEXT DEFAULT '',
		suggested_parent_id TEXT DEFAULT '',
		suggested_item_id   TEXT DEFAULT '',
		ambiguous           INTEGER NOT NULL DEFAULT 0,
		ambiguity_reason    TEXT DEFAULT '',
		triaged_at          DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_th_message ON triage_history(message_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// --- Work items ---

const workItemColumns = `id, parent_id, item_id, title, status, assignee, linked_thread_ids, active_message_ids, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(s rowScanner) (domain.WorkItem, error) {
	var item domain.WorkItem
	var threads, active string
	err := s.Scan(
		&item.ID, &item.ParentID, &item.ItemID, &item.Title, &item.Status,
		&item.Assignee, &threads, &active, &item.CreatedAt,
	)
	if err != nil {
		return item, err
	}
	item.LinkedThreadIDs = domain.SplitMulti(threads)
	item.ActiveMessageIDs = domain.SplitMulti(active)
	return item, nil
}

func UpsertWorkItem(db *sql.DB, item domain.WorkItem) error {
	_, err := db.Exec(
		`INSERT INTO work_items (id, parent_id, item_id, title, status, assignee, linked_thread_ids, active_message_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   parent_id = excluded.parent_id,
		   item_id = excluded.item_id,
		   title = excluded.title,
		   status = excluded.status,
		   assignee = excluded.assignee,
		   linked_thread_ids = excluded.linked_thread_ids,
		   active_message_ids = excluded.active_message_ids`,
		item.ID, item.ParentID, item.ItemID, item.Title, item.Status, item.Assignee,
		domain.JoinMulti(item.LinkedThreadIDs), domain.JoinMulti(item.ActiveMessageIDs),
	)
	return err
}

func UpsertWorkItems(db *sql.DB, items []domain.WorkItem) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO work_items (id, parent_id, item_id, title, status, assignee, linked_thread_ids, active_message_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   parent_id = excluded.parent_id,
		   item_id = excluded.item_id,
		   title = excluded.title,
		   status = excluded.status,
		   assignee = excluded.assignee,
		   linked_thread_ids = excluded.linked_thread_ids,
		   active_message_ids = excluded.active_message_ids`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for _, item := range items {
		_, err := stmt.Exec(
			item.ID, item.ParentID, item.ItemID, item.Title, item.Status, item.Assignee,
			domain.JoinMulti(item.LinkedThreadIDs), domain.JoinMulti(item.ActiveMessageIDs),
		)
		if err != nil {
			return written, err
		}
		written++
	}
	return written, tx.Commit()
}

func GetWorkItemByID(db *sql.DB, id string) (domain.WorkItem, error) {
	item, err := scanWorkItem(db.QueryRow(
		`SELECT `+workItemColumns+` FROM work_items WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return item, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return item, err
}

// ListOpenWorkItems returns items that are not done, closed or cancelled,
// oldest first.
func ListOpenWorkItems(db *sql.DB) ([]domain.WorkItem, error) {
	rows, err := db.Query(
		`SELECT ` + workItemColumns + ` FROM work_items
		 WHERE lower(trim(status)) NOT IN ('done', 'closed', 'cancelled', 'canceled')
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func UpdateWorkItemStatus(db *sql.DB, id, status string) error {
	res, err := db.Exec(`UPDATE work_items SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// AppendActiveMessage records entry as the newest tracked message of item id.
// Entries already present are left where they are.
func AppendActiveMessage(db *sql.DB, id, entry string) error {
	return updateMulti(db, id, "active_message_ids", entry)
}

// LinkThread adds threadID to the item's linked thread ids.
func LinkThread(db *sql.DB, id, threadID string) error {
	return updateMulti(db, id, "linked_thread_ids", threadID)
}

func updateMulti(db *sql.DB, id, column, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRow(`SELECT `+column+` FROM work_items WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	values := domain.SplitMulti(current)
	for _, v := range values {
		if v == value {
			return nil
		}
	}
	values = append(values, value)
	if _, err := tx.Exec(`UPDATE work_items SET `+column+` = ? WHERE id = ?`, domain.JoinMulti(values), id); err != nil {
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// --- Rule rows ---

// ReplaceRules swaps the stored rule set for rules, keeping their order.
func ReplaceRules(db *sql.DB, rs []domain.Rule) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM rule_rows`); err != nil {
		return 0, err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO rule_rows (scope, parent_id, target_id, match_text, match_sender, priority)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range rs {
		row := rules.ToRow(r)
		if _, err := stmt.Exec(row[0], row[1], row[2], row[3], row[4], row[5]); err != nil {
			return 0, err
		}
	}
	return len(rs), tx.Commit()
}

// LoadRuleRows returns the stored rule rows in insertion order, without a header.
func LoadRuleRows(db *sql.DB) ([][]string, error) {
	rows, err := db.Query(
		`SELECT scope, parent_id, target_id, match_text, match_sender, priority
		 FROM rule_rows ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		row := make([]string, rules.RowFields)
		if err := rows.Scan(&row[0], &row[1], &row[2], &row[3], &row[4], &row[5]); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// LoadRules reads the stored rule rows into a Store.
func LoadRules(db *sql.DB) (rules.Store, rules.IngestStats, error) {
	rows, err := LoadRuleRows(db)
	if err != nil {
		return rules.Store{}, rules.IngestStats{}, err
	}
	store, stats := rules.FromDataRows(rows)
	return store, stats, nil
}

// --- Triage history ---

func InsertTriageRecord(db *sql.DB, r domain.TriageRecord) error {
	_, err := db.Exec(
		`INSERT INTO triage_history
		 (message_id, subject, sender, linked_item_id, match_kind, suggested_parent_id, suggested_item_id, ambiguous, ambiguity_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.MessageID, r.Subject, r.Sender, r.LinkedItemID, r.MatchKind,
		r.SuggestedParentID, r.SuggestedItemID, r.Ambiguous, r.AmbiguityReason,
	)
	return err
}

func HasTriaged(db *sql.DB, messageID string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM triage_history WHERE message_id = ?`, messageID).Scan(&count)
	return count > 0, err
}

// GetRecentTriageRecords returns history newer than since, newest first.
// triaged_at is stored in UTC by SQLite, so since is compared in UTC too.
func GetRecentTriageRecords(db *sql.DB, since time.Time, limit int) ([]domain.TriageRecord, error) {
	rows, err := db.Query(
		`SELECT id, message_id, subject, sender, linked_item_id, match_kind,
		        suggested_parent_id, suggested_item_id, ambiguous, ambiguity_reason, triaged_at
		 FROM triage_history
		 WHERE triaged_at >= ?
		 ORDER BY triaged_at DESC, id DESC
		 LIMIT ?`,
		since.UTC().Format("2006-01-02 15:04:05"), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TriageRecord
	for rows.Next() {
		var r domain.TriageRecord
		if err := rows.Scan(
			&r.ID, &r.MessageID, &r.Subject, &r.Sender, &r.LinkedItemID, &r.MatchKind,
			&r.SuggestedParentID, &r.SuggestedItemID, &r.Ambiguous, &r.AmbiguityReason, &r.TriagedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
