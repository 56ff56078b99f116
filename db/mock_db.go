package db

import (
	"sort"
	"sync"

	"golang.org/x/oauth2"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

// MockDB is a mock implementation of the DB for testing
type MockDB struct {
	mu sync.Mutex

	// Mock data storage
	Tokens   map[string]*oauth2.Token
	Events   []*models.TransferEvent
	Accounts map[string][]models.Account

	// Error values to return
	GetTokenErr             error
	SaveTokenErr            error
	SaveTransferEventErr    error
	GetTransferEventsErr    error
	SaveSnapshotBalancesErr error
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		Tokens:   make(map[string]*oauth2.Token),
		Accounts: make(map[string][]models.Account),
	}
}

// GetToken returns a copy of the stored token, nil when there is none
func (m *MockDB) GetToken(instanceID string) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTokenErr != nil {
		return nil, m.GetTokenErr
	}

	token, ok := m.Tokens[instanceID]
	if !ok {
		return nil, nil
	}
	cp := *token
	return &cp, nil
}

// SaveToken stores a copy of the token
func (m *MockDB) SaveToken(instanceID string, token *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveTokenErr != nil {
		return m.SaveTokenErr
	}

	cp := *token
	m.Tokens[instanceID] = &cp
	return nil
}

// DeleteToken removes the stored token
func (m *MockDB) DeleteToken(instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Tokens, instanceID)
	return nil
}

// SaveTransferEvent appends the event to the mock database
func (m *MockDB) SaveTransferEvent(event *models.TransferEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveTransferEventErr != nil {
		return m.SaveTransferEventErr
	}

	m.Events = append(m.Events, event)
	return nil
}

// GetTransferEvents returns the events of an instance, newest first
func (m *MockDB) GetTransferEvents(instanceID string, limit int) ([]*models.TransferEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTransferEventsErr != nil {
		return nil, m.GetTransferEventsErr
	}

	var events []*models.TransferEvent
	for _, e := range m.Events {
		if instanceID == "" || e.InstanceID == instanceID {
			events = append(events, e)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// SaveSnapshotBalances stores the accounts that have a balance
func (m *MockDB) SaveSnapshotBalances(instanceID string, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveSnapshotBalancesErr != nil {
		return m.SaveSnapshotBalancesErr
	}
	if snap == nil {
		return nil
	}

	var accounts []models.Account
	for _, acc := range snap.Clone().Accounts {
		if acc.Balance != nil {
			accounts = append(accounts, acc)
		}
	}
	m.Accounts[instanceID] = accounts
	return nil
}

// GetAccountBalances returns the stored accounts of an instance
func (m *MockDB) GetAccountBalances(instanceID string) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Account(nil), m.Accounts[instanceID]...), nil
}

// Initialize is a no-op for the mock database
func (m *MockDB) Initialize() error {
	return nil
}

// Close is a no-op for the mock database
func (m *MockDB) Close() error {
	return nil
}
