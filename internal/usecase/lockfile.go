package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"BucketCatalog/internal/domain"
)

// lockInfo is the content of the lock file.
type lockInfo struct {
	PID       int       `json:"pid"`
	Token     string    `json:"token"`
	RunID     string    `json:"db_name"`
	StartedAt time.Time `json:"started_at"`
}

// lockFile marks an ingestion in flight so that other processes sharing the
// data directory observe it. It is created exclusively and removed only by
// the holder of the matching token.
type lockFile struct {
	path string
}

func (l lockFile) acquire(info lockInfo) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		held, ok := l.read()
		if ok {
			return fmt.Errorf("%w: run %s held by pid %d", domain.ErrAlreadyRunning, held.RunID, held.PID)
		}
		return fmt.Errorf("%w: lock file %s present", domain.ErrAlreadyRunning, l.path)
	}
	if err != nil {
		return fmt.Errorf("create lock file: %w", err)
	}

	encErr := json.NewEncoder(f).Encode(info)
	closeErr := f.Close()
	if err := errors.Join(encErr, closeErr); err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

func (l lockFile) read() (lockInfo, bool) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return lockInfo{}, false
	}
	var info lockInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return lockInfo{}, false
	}
	return info, true
}

// release removes the lock if it still carries token.
func (l lockFile) release(token string) error {
	info, ok := l.read()
	if ok && info.Token != token {
		return fmt.Errorf("lock file owned by run %s", info.RunID)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// age reports how old the lock is. Unreadable locks fall back to the file's
// modification time.
func (l lockFile) age(now time.Time) (time.Duration, bool) {
	if info, ok := l.read(); ok && !info.StartedAt.IsZero() {
		return now.Sub(info.StartedAt), true
	}
	st, err := os.Stat(l.path)
	if err != nil {
		return 0, false
	}
	return now.Sub(st.ModTime()), true
}

// clearStale removes a lock older than maxAge. It reports whether a lock was removed.
func (l lockFile) clearStale(now time.Time, maxAge time.Duration) (bool, error) {
	age, ok := l.age(now)
	if !ok || age <= maxAge {
		return false, nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("remove stale lock: %w", err)
	}
	return true, nil
}
