package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	sessionFileName = "session.json"
	cacheFileName   = "messages.json"
)

// SessionSnapshot is the serialized chat directory written to disk on every
// meaningful mutation and reloaded at process start.
type SessionSnapshot struct {
	Groups            []ChatInfo `json:"groups"`
	PrivateChats      []ChatInfo `json:"private_chats"`
	MonitoredKeywords []string   `json:"monitored_keywords"`
	Timestamp         time.Time  `json:"timestamp"`
}

// SessionStore persists the chat directory and the message cache as two local
// files. Writes go to a temporary file first and are renamed into place so a
// crash mid-write never leaves a truncated snapshot behind.
type SessionStore struct {
	dir string
}

func NewSessionStore(dir string) (*SessionStore, error) {
	if dir == "" {
		return nil, errors.New("session store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session store directory: %w", err)
	}
	return &SessionStore{dir: dir}, nil
}

func (s *SessionStore) sessionPath() string {
	return filepath.Join(s.dir, sessionFileName)
}

func (s *SessionStore) cachePath() string {
	return filepath.Join(s.dir, cacheFileName)
}

// SaveDirectory writes the directory snapshot atomically.
func (s *SessionStore) SaveDirectory(snapshot SessionSnapshot) error {
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now()
	}
	return s.writeAtomic(s.sessionPath(), snapshot)
}

// LoadDirectory reads the directory snapshot. A missing file yields (nil, nil).
func (s *SessionStore) LoadDirectory() (*SessionSnapshot, error) {
	data, err := os.ReadFile(s.sessionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session snapshot: %w", err)
	}
	var snapshot SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &snapshot, nil
}

// SaveMessages writes the message cache atomically.
func (s *SessionStore) SaveMessages(messages map[string][]MessageRecord) error {
	return s.writeAtomic(s.cachePath(), messages)
}

// LoadMessages reads the message cache. A missing file yields (nil, nil).
func (s *SessionStore) LoadMessages() (map[string][]MessageRecord, error) {
	data, err := os.ReadFile(s.cachePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read message cache: %w", err)
	}
	var messages map[string][]MessageRecord
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode message cache: %w", err)
	}
	return messages, nil
}

// Clear removes both files. Missing files are not an error.
func (s *SessionStore) Clear() error {
	var firstErr error
	for _, path := range []string{s.sessionPath(), s.cachePath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *SessionStore) writeAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
