// Package contacts adapts external contact lists into queue snapshots.
package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"voiceagents/internal/campaigns"
)

var ErrNoContactList = errors.New("contacts: campaign has no contact list")

// Contact is one entry of an external contact list.
type Contact struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	DoNotCall bool   `json:"do_not_call"`
}

// Source yields the ordered contacts of a campaign. It is read once, when
// the campaign queue is first materialized.
type Source interface {
	Contacts(ctx context.Context, c campaigns.Campaign) ([]Contact, error)
}

// StaticSource serves contact lists held in memory, keyed by contact list id.
type StaticSource struct {
	mu    sync.RWMutex
	lists map[string][]Contact
}

func NewStaticSource() *StaticSource {
	return &StaticSource{lists: map[string][]Contact{}}
}

// LoadStaticSource reads a JSON object mapping contact list ids to contacts.
func LoadStaticSource(r io.Reader) (*StaticSource, error) {
	var lists map[string][]Contact
	if err := json.NewDecoder(r).Decode(&lists); err != nil {
		return nil, fmt.Errorf("contacts: decode lists: %w", err)
	}
	s := NewStaticSource()
	for id, list := range lists {
		s.Put(id, list)
	}
	return s, nil
}

// Put replaces the contacts of a list.
func (s *StaticSource) Put(listID string, contacts []Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Contact, len(contacts))
	copy(out, contacts)
	s.lists[listID] = out
}

func (s *StaticSource) Contacts(ctx context.Context, c campaigns.Campaign) ([]Contact, error) {
	if strings.TrimSpace(c.ContactListID) == "" {
		return nil, ErrNoContactList
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.lists[c.ContactListID]
	out := make([]Contact, len(list))
	copy(out, list)
	return out, nil
}
