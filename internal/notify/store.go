package notify

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSubscriptionNotFound is returned when a subscription id is unknown.
var ErrSubscriptionNotFound = errors.New("webhook subscription not found")

// Store keeps webhook subscriptions in a JSON file so registrations survive
// restarts. All mutations rewrite the file atomically.
type Store struct {
	mu   sync.RWMutex
	path string
	subs map[string]Subscription
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		subs: make(map[string]Subscription),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var subs []Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return err
	}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return nil
}

func (s *Store) persistLocked() error {
	subs := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}

	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".webhooks-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *Store) Create(url string, secret string, events []string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := Subscription{
		ID:        uuid.NewString(),
		URL:       url,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	s.subs[sub.ID] = sub
	if err := s.persistLocked(); err != nil {
		delete(s.subs, sub.ID)
		return Subscription{}, err
	}
	return sub, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, id)
	if err := s.persistLocked(); err != nil {
		s.subs[id] = sub
		return err
	}
	return nil
}

// List returns all subscriptions, secrets redacted.
func (s *Store) List() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.Secret != "" {
			sub.Secret = "********"
		}
		subs = append(subs, sub)
	}
	return subs
}

// Active returns subscriptions eligible for delivery, secrets intact.
func (s *Store) Active() []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.Active {
			subs = append(subs, sub)
		}
	}
	return subs
}
