package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps notifications in process memory for the sqlite and
// memory storage modes.
type MemoryStore struct {
	mu           sync.Mutex
	items        []Notification
	emails       map[string]string
	emailEnabled bool
	emailFrom    string
}

func NewMemoryStore(emailEnabled bool, emailFrom string) *MemoryStore {
	return &MemoryStore{emails: map[string]string{}, emailEnabled: emailEnabled, emailFrom: emailFrom}
}

func (m *MemoryStore) SetUserEmail(tenantID, userID, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[tenantID+"/"+userID] = email
}

func (m *MemoryStore) CreateNotification(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uuid.NewString()
	n.CreatedAt = time.Now().UTC()
	m.items = append(m.items, n)
	return nil
}

func (m *MemoryStore) UserEmail(_ context.Context, tenantID, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emails[tenantID+"/"+userID], nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, tenantID, userID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := m.matching(tenantID, userID, unreadOnly)
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if offset >= len(matched) {
		return []Notification{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) CountNotifications(_ context.Context, tenantID, userID string, unreadOnly bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(tenantID, userID, unreadOnly)), nil
}

func (m *MemoryStore) MarkRead(_ context.Context, tenantID, userID, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		n := &m.items[i]
		if n.ID != notificationID || n.TenantID != tenantID || n.UserID != userID {
			continue
		}
		if n.ReadAt == nil {
			now := time.Now().UTC()
			n.ReadAt = &now
		}
		return nil
	}
	return ErrNotFound
}

func (m *MemoryStore) EmailSettings(context.Context, string) (bool, string, error) {
	return m.emailEnabled, m.emailFrom, nil
}

func (m *MemoryStore) matching(tenantID, userID string, unreadOnly bool) []Notification {
	out := []Notification{}
	for _, n := range m.items {
		if n.TenantID != tenantID || n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
