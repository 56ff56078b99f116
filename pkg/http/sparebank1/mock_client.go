package sparebank1

import (
	"context"
	"sync"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

// MockClient is a mock implementation of the bank client for testing
type MockClient struct {
	mu sync.Mutex

	// Mock data to return
	Accounts       []models.Account
	Balances       map[string]models.BalanceResult
	TransferResult *models.TransferResult

	// Error values to return
	GetAccountsErr        error
	GetAccountBalancesErr error
	TransferErr           error

	// Hooks run before the mock answers, e.g. to block a call in tests
	BeforeGetAccounts        func(ctx context.Context)
	BeforeGetAccountBalances func(ctx context.Context, accountNumbers []string)

	// Recorded calls
	getAccountsCalls int
	balanceCalls     [][]string
	transfers        []models.TransferRequest
	creditTransfers  []models.TransferRequest
}

// NewMockClient creates a new mock bank client
func NewMockClient() *MockClient {
	return &MockClient{
		Accounts:       []models.Account{},
		Balances:       map[string]models.BalanceResult{},
		TransferResult: &models.TransferResult{PaymentID: "mock-payment"},
	}
}

// GetAccounts returns copies of the mock accounts
func (m *MockClient) GetAccounts(ctx context.Context) ([]models.Account, error) {
	if m.BeforeGetAccounts != nil {
		m.BeforeGetAccounts(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAccountsCalls++

	if m.GetAccountsErr != nil {
		return nil, m.GetAccountsErr
	}
	out := make([]models.Account, len(m.Accounts))
	for i, acc := range m.Accounts {
		if acc.Balance != nil {
			b := *acc.Balance
			acc.Balance = &b
		}
		out[i] = acc
	}
	return out, nil
}

// GetAccountBalances returns the mock balance for every requested account.
// Accounts without a mock balance are reported as failed.
func (m *MockClient) GetAccountBalances(ctx context.Context, accountNumbers []string) (map[string]models.BalanceResult, error) {
	if m.BeforeGetAccountBalances != nil {
		m.BeforeGetAccountBalances(ctx, accountNumbers)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceCalls = append(m.balanceCalls, append([]string(nil), accountNumbers...))

	if m.GetAccountBalancesErr != nil {
		return nil, m.GetAccountBalancesErr
	}
	out := make(map[string]models.BalanceResult, len(accountNumbers))
	for _, accNo := range accountNumbers {
		if res, ok := m.Balances[accNo]; ok {
			out[accNo] = res
		} else {
			out[accNo] = models.BalanceResult{Err: &models.UpstreamError{Status: 404, Message: "no balance for " + accNo}}
		}
	}
	return out, nil
}

// TransferMoney records the request and returns the mock result
func (m *MockClient) TransferMoney(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, req)

	if m.TransferErr != nil {
		return nil, m.TransferErr
	}
	return m.TransferResult, nil
}

// TransferMoneyCreditCard records the request and returns the mock result
func (m *MockClient) TransferMoneyCreditCard(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creditTransfers = append(m.creditTransfers, req)

	if m.TransferErr != nil {
		return nil, m.TransferErr
	}
	return m.TransferResult, nil
}

// SetAccounts replaces the mock accounts while other goroutines may be
// reading them.
func (m *MockClient) SetAccounts(accounts []models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts = accounts
}

// SetGetAccountsErr changes the error returned by GetAccounts.
func (m *MockClient) SetGetAccountsErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetAccountsErr = err
}

func (m *MockClient) GetAccountsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAccountsCalls
}

// BalanceCalls returns the account numbers of every balance call, in order.
func (m *MockClient) BalanceCalls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.balanceCalls...)
}

func (m *MockClient) Transfers() []models.TransferRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TransferRequest(nil), m.transfers...)
}

func (m *MockClient) CreditCardTransfers() []models.TransferRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TransferRequest(nil), m.creditTransfers...)
}
