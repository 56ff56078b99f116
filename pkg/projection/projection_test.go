package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

var now = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		LastUpdate: now.Add(-time.Hour),
		Accounts: []models.Account{
			{ID: "86011117947", AccountNumber: "86011117947", Name: "Brukskonto", Description: "Brukskonto", CurrencyCode: "NOK",
				Balance: &models.Balance{Amount: "1000.50", Currency: "NOK"}},
			{ID: "K1234567", AccountNumber: "K1234567", CreditCardAccountID: "cc-1", Name: "Mastercard", Type: "CREDITCARD",
				Balance: &models.Balance{Amount: "-500", Currency: "NOK"}},
			{ID: "42012345679", AccountNumber: "42012345679", Type: "SAVINGS"},
		},
	}
}

func TestAvailable(t *testing.T) {
	testCases := []struct {
		name        string
		snap        *models.Snapshot
		lastSuccess bool
		expected    bool
	}{
		{"No snapshot", nil, true, false},
		{"Fresh after failed poll", &models.Snapshot{LastUpdate: now.Add(-2 * time.Hour)}, false, true},
		{"Stale after failed poll", &models.Snapshot{LastUpdate: now.Add(-3 * time.Hour)}, false, false},
		{"Stale after successful poll", &models.Snapshot{LastUpdate: now.Add(-5 * time.Hour)}, true, true},
		{"No timestamp", &models.Snapshot{}, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Available(tc.snap, tc.lastSuccess, now))
		})
	}
}

func TestProjectStatus(t *testing.T) {
	p := Project("main", "Family", testSnapshot(), true, now)

	assert.Equal(t, "main_accounts", p.Status.UniqueID)
	assert.Equal(t, "Family Accounts", p.Status.Name)
	assert.Equal(t, "3", p.Status.State)
	assert.True(t, p.Status.Available)
	assert.Equal(t, 3, p.Status.Attributes["account_count"])
	assert.Equal(t, "2025-01-15T11:00:00Z", p.Status.Attributes["last_update"])
	assert.Equal(t, StatusSuccess, p.Status.Attributes["balance_fetch_status"])
	assert.NotContains(t, p.Status.Attributes, "balance_fetch_errors")

	t.Run("Partial failure keeps the first three errors", func(t *testing.T) {
		snap := testSnapshot()
		snap.BalanceFetchPartial = true
		snap.BalanceFetchErrors = []string{"a", "b", "c", "d"}

		p := Project("main", "Family", snap, true, now)
		assert.Equal(t, StatusPartialFailure, p.Status.Attributes["balance_fetch_status"])
		assert.Equal(t, []string{"a", "b", "c"}, p.Status.Attributes["balance_fetch_errors"])
	})

	t.Run("No snapshot", func(t *testing.T) {
		p := Project("main", "Family", nil, false, now)
		assert.False(t, p.Status.Available)
		assert.Empty(t, p.Status.State)
		assert.Empty(t, p.Accounts)
	})
}

func TestProjectAccounts(t *testing.T) {
	p := Project("main", "Family", testSnapshot(), true, now)
	require.Len(t, p.Accounts, 3)

	checking := p.Accounts[0]
	assert.Equal(t, "main_account_86011117947", checking.UniqueID)
	assert.Equal(t, "Family Brukskonto", checking.Name)
	assert.Equal(t, "1000.5", checking.State)
	assert.Equal(t, "NOK", checking.Unit)
	assert.True(t, checking.Available)
	assert.Equal(t, "Brukskonto", checking.Attributes["account_type"])
	assert.NotContains(t, checking.Attributes, "credit_card_account_id")

	card := p.Accounts[1]
	assert.Equal(t, "main_account_K1234567", card.UniqueID)
	assert.Equal(t, "-500", card.State)
	assert.Equal(t, "cc-1", card.Attributes["credit_card_account_id"])
	assert.Equal(t, "Creditcard", card.Attributes["account_type"])

	savings := p.Accounts[2]
	assert.Equal(t, "Family Account 3", savings.Name)
	assert.False(t, savings.Available)
	assert.Empty(t, savings.State)
	assert.Equal(t, "Savings", savings.Attributes["account_type"])

	t.Run("Unparseable balance", func(t *testing.T) {
		snap := testSnapshot()
		snap.Accounts[0].Balance.Amount = "n/a"
		p := Project("main", "Family", snap, true, now)
		assert.False(t, p.Accounts[0].Available)
		assert.Empty(t, p.Accounts[0].State)
	})

	t.Run("Missing id falls back to stable id", func(t *testing.T) {
		snap := &models.Snapshot{LastUpdate: now, Accounts: []models.Account{{Name: "Mystery"}}}
		p := Project("main", "Family", snap, true, now)
		assert.Equal(t, "main_account_account_0", p.Accounts[0].UniqueID)
		assert.Equal(t, unknown, p.Accounts[0].Attributes["account_number"])
		assert.Equal(t, unknown, p.Accounts[0].Attributes["account_type"])
	})
}

func TestStableAccountID(t *testing.T) {
	assert.Equal(t, "86011117947", StableAccountID(models.Account{AccountNumber: "86011117947", AccountID: "x"}, 0))
	assert.Equal(t, "cc-1", StableAccountID(models.Account{CreditCardAccountID: "cc-1"}, 0))
	assert.Equal(t, "account_7", StableAccountID(models.Account{}, 7))
}

func TestProjectorKeepsVanishedAccounts(t *testing.T) {
	projector := NewProjector("main", "Family")

	p := projector.Project(testSnapshot(), true, now)
	require.Len(t, p.Accounts, 3)

	snap := testSnapshot()
	snap.Accounts = snap.Accounts[1:]
	p = projector.Project(snap, true, now)

	require.Len(t, p.Accounts, 3)
	gone := p.Accounts[2]
	assert.Equal(t, "main_account_86011117947", gone.UniqueID)
	assert.False(t, gone.Available)
	assert.Empty(t, gone.State)
	assert.Equal(t, "Brukskonto", gone.Attributes["account_name"])

	// an account that comes back is projected from the snapshot again
	p = projector.Project(testSnapshot(), true, now)
	require.Len(t, p.Accounts, 3)
	assert.True(t, p.Accounts[0].Available)
}
