package statedb

import (
	"database/sql"
	"errors"
	"strconv"
	"time"
)

const metaLastModified = "last_modified"

// SetMeta stores a key/value pair.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetMeta returns the value for key, or "" when unset.
func (s *StateDB) GetMeta(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// Touch records that the saved tabs changed.
func (s *StateDB) Touch() error {
	return s.SetMeta(metaLastModified, strconv.FormatInt(time.Now().UnixNano(), 10))
}

// LastModified returns the UnixNano time of the last Touch, or 0.
func (s *StateDB) LastModified() (int64, error) {
	v, err := s.GetMeta(metaLastModified)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
