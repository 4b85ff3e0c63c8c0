package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// FileLock is the lock file format. A lock whose process is gone or whose
// expiry has passed is stale and may be taken over.
type FileLock struct {
	Holder    string    `json:"holder"`
	Token     string    `json:"token"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// File is a Locker backed by lock files in a directory. It serves
// deployments that share a SQLite database file but no Redis.
type File struct {
	dir    string
	holder string
}

// NewFile creates a file locker writing <dir>/<key>.lock
func NewFile(dir, holder string) *File {
	return &File{dir: dir, holder: holder}
}

func (f *File) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_").Replace(key)
	return filepath.Join(f.dir, name+".lock")
}

// TryLock implements Locker
func (f *File) TryLock(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}

	now := time.Now()
	lock := FileLock{
		Holder:    f.holder,
		Token:     newToken(),
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	path := f.path(key)
	// second attempt only after removing a stale lock
	for attempt := 0; attempt < 2; attempt++ {
		err := writeExclusive(path, data)
		if err == nil {
			return &fileLock{path: path, token: lock.Token}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}
		if !isStale(path, now) {
			return nil, ErrLocked
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return nil, ErrLocked
}

func writeExclusive(path string, data []byte) error {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		os.Remove(path)
		return err
	}
	return fh.Close()
}

func readLock(path string) (*FileLock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lock FileLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

func isStale(path string, now time.Time) bool {
	existing, err := readLock(path)
	if err != nil {
		// unreadable or half-written
		return true
	}
	if !existing.ExpiresAt.IsZero() && now.After(existing.ExpiresAt) {
		return true
	}
	return !isProcessAlive(existing.PID, existing.Hostname)
}

type fileLock struct {
	path  string
	token string
	once  sync.Once
	err   error
}

// Release removes the lock file if it still belongs to this holder
func (fl *fileLock) Release(context.Context) error {
	fl.once.Do(func() {
		existing, err := readLock(fl.path)
		if err != nil {
			if !os.IsNotExist(err) {
				fl.err = fmt.Errorf("failed to read lock file: %w", err)
			}
			return
		}
		if existing.Token != fl.token {
			return
		}
		if err := os.Remove(fl.path); err != nil && !os.IsNotExist(err) {
			fl.err = fmt.Errorf("failed to remove lock file: %w", err)
		}
	})
	return fl.err
}

// isProcessAlive checks if a process with the given PID exists on the given
// hostname. Processes on other hosts are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks existence (Unix: kill -0)
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: exists but not ours
	return errors.Is(err, syscall.EPERM)
}
