package statedb

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TabRow is one persisted tab. Token is the encoded recovery token.
type TabRow struct {
	ID      string
	Title   string
	Order   int
	Token   []byte
	SavedAt time.Time
}

// ErrEmptyToken is returned when a row without a token is saved.
var ErrEmptyToken = errors.New("statedb: empty token")

const upsertTab = `
	INSERT INTO tabs (id, title, sort_order, token, saved_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		sort_order = excluded.sort_order,
		token = excluded.token,
		saved_at = excluded.saved_at
`

func (r *TabRow) args(now time.Time) ([]any, error) {
	if len(r.Token) == 0 {
		return nil, fmt.Errorf("%w: tab %s", ErrEmptyToken, r.ID)
	}
	at := r.SavedAt
	if at.IsZero() {
		at = now
	}
	return []any{r.ID, r.Title, r.Order, string(r.Token), at.Unix()}, nil
}

// IsEmpty reports whether no tab is saved.
func (s *StateDB) IsEmpty() (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS (SELECT 1 FROM tabs)").Scan(&exists)
	return !exists, err
}

// SaveTab inserts or updates one tab.
func (s *StateDB) SaveTab(r *TabRow) error {
	args, err := r.args(time.Now())
	if err != nil {
		return err
	}
	_, err = s.db.Exec(upsertTab, args...)
	return err
}

// SaveTabs makes rows the complete saved set: tabs not listed are removed.
// Either every row is written or none is.
func (s *StateDB) SaveTabs(rows []*TabRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	del := "DELETE FROM tabs"
	keep := make([]any, len(rows))
	for i, r := range rows {
		keep[i] = r.ID
	}
	if len(rows) > 0 {
		del += " WHERE id NOT IN (?" + strings.Repeat(",?", len(rows)-1) + ")"
	}
	if _, err := tx.Exec(del, keep...); err != nil {
		return err
	}

	stmt, err := tx.Prepare(upsertTab)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range rows {
		args, err := r.args(now)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadTabs returns the saved tabs in tab-strip order.
func (s *StateDB) LoadTabs() ([]*TabRow, error) {
	rows, err := s.db.Query(`SELECT id, title, sort_order, token, saved_at FROM tabs ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TabRow
	for rows.Next() {
		var (
			r     TabRow
			token string
			saved int64
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Order, &token, &saved); err != nil {
			return nil, err
		}
		r.Token = []byte(token)
		r.SavedAt = time.Unix(saved, 0)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteTab forgets one tab.
func (s *StateDB) DeleteTab(id string) error {
	_, err := s.db.Exec("DELETE FROM tabs WHERE id = ?", id)
	return err
}

// ClearTabs forgets every tab and returns how many there were.
func (s *StateDB) ClearTabs() (int64, error) {
	res, err := s.db.Exec("DELETE FROM tabs")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
