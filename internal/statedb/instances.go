package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotRegistered is returned by ElectPrimary before RegisterInstance.
var ErrNotRegistered = errors.New("statedb: instance not registered")

// RegisterInstance records this process as a running tabby instance.
func (s *StateDB) RegisterInstance(primary bool) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(`
		INSERT INTO instances (pid, started_at, seen_at, is_primary) VALUES (?, ?, ?, ?)
		ON CONFLICT(pid) DO UPDATE SET started_at = excluded.started_at,
			seen_at = excluded.seen_at, is_primary = excluded.is_primary
	`, s.pid, now, now, boolInt(primary))
	return err
}

// Heartbeat marks this process as still alive.
func (s *StateDB) Heartbeat() error {
	_, err := s.db.Exec("UPDATE instances SET seen_at = ? WHERE pid = ?", time.Now().Unix(), s.pid)
	return err
}

// UnregisterInstance removes this process.
func (s *StateDB) UnregisterInstance() error {
	_, err := s.db.Exec("DELETE FROM instances WHERE pid = ?", s.pid)
	return err
}

// CleanDeadInstances removes instances not seen within timeout.
func (s *StateDB) CleanDeadInstances(timeout time.Duration) error {
	_, err := s.db.Exec("DELETE FROM instances WHERE seen_at < ?", time.Now().Add(-timeout).Unix())
	return err
}

// ElectPrimary makes this process the primary (the one that restores and
// saves tabs) unless another instance seen within timeout already is. A
// stale primary loses the flag. Reports whether this process is primary.
func (s *StateDB) ElectPrimary(timeout time.Duration) (bool, error) {
	cutoff := time.Now().Add(-timeout).Unix()

	// One statement, so two processes electing at once can't both win.
	if _, err := s.db.Exec(`
		UPDATE instances SET is_primary = CASE WHEN pid = ? THEN 1 ELSE 0 END
		WHERE NOT EXISTS (
			SELECT 1 FROM instances WHERE is_primary = 1 AND seen_at >= ? AND pid != ?
		)
	`, s.pid, cutoff, s.pid); err != nil {
		return false, fmt.Errorf("statedb: elect: %w", err)
	}

	var primary int
	err := s.db.QueryRow("SELECT is_primary FROM instances WHERE pid = ?", s.pid).Scan(&primary)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotRegistered
	}
	if err != nil {
		return false, fmt.Errorf("statedb: read primary: %w", err)
	}
	return primary == 1, nil
}

// ResignPrimary gives up the primary flag.
func (s *StateDB) ResignPrimary() error {
	_, err := s.db.Exec("UPDATE instances SET is_primary = 0 WHERE pid = ?", s.pid)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
