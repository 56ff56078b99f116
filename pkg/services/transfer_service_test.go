package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnda/sparebank-sync/pkg/config"
	"github.com/vpnda/sparebank-sync/pkg/events"
	"github.com/vpnda/sparebank-sync/pkg/http/sparebank1"
	"github.com/vpnda/sparebank-sync/pkg/models"
)

type recordingPublisher struct {
	events []models.TransferEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.TransferEvent) error {
	p.events = append(p.events, event)
	return p.err
}

var _ events.Publisher = (*recordingPublisher)(nil)

func newTestTransferService(t *testing.T) (*TransferService, *sparebank1.MockClient, *recordingPublisher, *fakeClock) {
	t.Helper()
	coordinator, client, clock := newTestCoordinator()

	registry := NewRegistry()
	registry.Register(&Instance{
		ID: "main",
		Config: config.InstanceConfig{
			ID:              "main",
			Name:            "SpareBank 1",
			DefaultCurrency: "NOK",
			MaxAmount:       200,
		},
		Coordinator: coordinator,
	})

	publisher := &recordingPublisher{}
	s := NewTransferService(registry, publisher)
	s.clock = clock
	return s, client, publisher, clock
}

func TestTransferDebit(t *testing.T) {
	s, client, publisher, clock := newTestTransferService(t)

	res, err := s.TransferDebit(context.Background(), DebitRequest{
		InstanceID:  "main",
		FromAccount: "8601.11.17947",
		ToAccount:   "4201 23 45679",
		Amount:      "99.999",
		Message:     "Rent",
		DueDate:     "2025-02-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "mock-payment", res.PaymentID)

	transfers := client.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, checkingAccount, transfers[0].FromAccount)
	assert.Equal(t, savingsAccount, transfers[0].ToAccount)
	assert.Equal(t, "100.00", transfers[0].Amount.StringFixed(2))
	assert.Equal(t, "NOK", transfers[0].Currency)
	assert.Equal(t, "Rent", transfers[0].Message)
	assert.Equal(t, "2025-02-01", transfers[0].DueDate)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.NotEmpty(t, event.ID)
	assert.True(t, event.Success)
	assert.Equal(t, models.TransferKindDebit, event.Kind)
	assert.Equal(t, "main", event.InstanceID)
	assert.Equal(t, "SpareBank 1", event.InstanceName)
	assert.Equal(t, "Rent", event.Description)
	assert.Equal(t, "mock-payment", event.PaymentID)
	assert.Equal(t, clock.Now().UTC(), event.Timestamp)
	assert.Empty(t, event.FailureReason)
}

func TestTransferDebitCurrency(t *testing.T) {
	t.Run("From account currency", func(t *testing.T) {
		s, client, _, _ := newTestTransferService(t)
		accounts := testAccounts()
		accounts[0].CurrencyCode = "EUR"
		client.SetAccounts(accounts)

		inst, err := s.registry.Get("main")
		require.NoError(t, err)
		require.NoError(t, inst.Coordinator.Refresh(context.Background()))

		_, err = s.TransferDebit(context.Background(), DebitRequest{
			InstanceID:  "main",
			FromAccount: checkingAccount,
			ToAccount:   savingsAccount,
			Amount:      "10",
		})
		require.NoError(t, err)
		assert.Equal(t, "EUR", client.Transfers()[0].Currency)
	})

	t.Run("Explicit currency over the limit", func(t *testing.T) {
		s, client, publisher, _ := newTestTransferService(t)

		_, err := s.TransferDebit(context.Background(), DebitRequest{
			InstanceID:  "main",
			FromAccount: checkingAccount,
			ToAccount:   savingsAccount,
			Amount:      "50",
			Currency:    "usd",
		})
		require.ErrorIs(t, err, models.ErrLimitExceeded)
		assert.Contains(t, err.Error(), "equivalent to 500.00 NOK")
		assert.Empty(t, client.Transfers())
		assert.Empty(t, publisher.events)
	})

	t.Run("Unsupported currency", func(t *testing.T) {
		s, client, _, _ := newTestTransferService(t)

		_, err := s.TransferDebit(context.Background(), DebitRequest{
			InstanceID:  "main",
			FromAccount: checkingAccount,
			ToAccount:   savingsAccount,
			Amount:      "5",
			Currency:    "JPY",
		})
		require.ErrorIs(t, err, models.ErrUnsupportedCurrency)
		assert.Empty(t, client.Transfers())
	})
}

func TestTransferDebitRejectsInvalidRequests(t *testing.T) {
	testCases := []struct {
		name string
		req  DebitRequest
		want error
	}{
		{"Unknown instance", DebitRequest{InstanceID: "other", FromAccount: checkingAccount, ToAccount: savingsAccount, Amount: "1"}, ErrInstanceNotFound},
		{"Same account", DebitRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: "8601 11 17947", Amount: "1"}, ErrSameAccount},
		{"Bad from account", DebitRequest{InstanceID: "main", FromAccount: "86011117948", ToAccount: savingsAccount, Amount: "1"}, ErrInvalidAccountNumber},
		{"Bad to account", DebitRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: "123", Amount: "1"}, ErrInvalidAccountNumber},
		{"Bad due date", DebitRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: savingsAccount, Amount: "1", DueDate: "01.02.2025"}, ErrInvalidDueDate},
		{"Bad amount", DebitRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: savingsAccount, Amount: "ten"}, models.ErrInvalidFormat},
		{"Negative amount", DebitRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: savingsAccount, Amount: "-5"}, models.ErrNotPositive},
		{"Over the limit", DebitRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: savingsAccount, Amount: "200.01"}, models.ErrLimitExceeded},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, client, publisher, _ := newTestTransferService(t)

			_, err := s.TransferDebit(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, client.Transfers())
			assert.Empty(t, publisher.events)
		})
	}
}

func TestTransferDebitUpstreamFailure(t *testing.T) {
	s, client, publisher, _ := newTestTransferService(t)
	apiErr := &models.UpstreamError{
		Status:  422,
		Message: "POST https://api.sparebank1.no/personal/banking/transfer/debit failed – HTTP 422: insufficient_funds: Not enough money",
		Errors: []models.StructuredError{
			{Code: "insufficient_funds", Message: "Not enough money", TraceID: "trace-1"},
		},
	}
	client.TransferErr = apiErr

	_, err := s.TransferDebit(context.Background(), DebitRequest{
		InstanceID:  "main",
		FromAccount: checkingAccount,
		ToAccount:   savingsAccount,
		Amount:      "25",
	})
	require.ErrorIs(t, err, apiErr)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	assert.False(t, event.Success)
	assert.Equal(t, 422, event.HTTPCode)
	assert.Equal(t, apiErr.Message, event.FailureReason)
	assert.Equal(t, []string{"insufficient_funds"}, event.ErrorCodes)
	assert.Equal(t, []string{"trace-1"}, event.TraceIDs)
	assert.Len(t, event.Errors, 1)
	assert.Empty(t, event.PaymentID)
}

func TestTransferPublishFailureIsIgnored(t *testing.T) {
	s, _, publisher, _ := newTestTransferService(t)
	publisher.err = errors.New("disk full")

	_, err := s.TransferDebit(context.Background(), DebitRequest{
		InstanceID:  "main",
		FromAccount: checkingAccount,
		ToAccount:   savingsAccount,
		Amount:      "25",
	})
	assert.NoError(t, err)
	assert.Len(t, publisher.events, 1)
}

func TestTransferCreditCard(t *testing.T) {
	t.Run("Explicit credit card account", func(t *testing.T) {
		s, client, publisher, _ := newTestTransferService(t)

		_, err := s.TransferCreditCard(context.Background(), CreditCardRequest{
			InstanceID:          "main",
			FromAccount:         checkingAccount,
			CreditCardAccountID: "cc-9",
			Amount:              "150",
		})
		require.NoError(t, err)

		transfers := client.CreditCardTransfers()
		require.Len(t, transfers, 1)
		assert.Equal(t, "cc-9", transfers[0].CreditCardAccountID)
		assert.Equal(t, "NOK", transfers[0].Currency)

		require.Len(t, publisher.events, 1)
		assert.Equal(t, models.TransferKindCreditCard, publisher.events[0].Kind)
		assert.Equal(t, "cc-9", publisher.events[0].CreditCardAccountID)
	})

	t.Run("Resolved from snapshot", func(t *testing.T) {
		s, client, _, _ := newTestTransferService(t)
		inst, err := s.registry.Get("main")
		require.NoError(t, err)
		require.NoError(t, inst.Coordinator.Refresh(context.Background()))

		_, err = s.TransferCreditCard(context.Background(), CreditCardRequest{
			InstanceID:  "main",
			FromAccount: checkingAccount,
			ToAccount:   "K1234567",
			Amount:      "150",
		})
		require.NoError(t, err)
		assert.Equal(t, "cc-1", client.CreditCardTransfers()[0].CreditCardAccountID)
	})

	t.Run("Rejected requests", func(t *testing.T) {
		s, client, _, _ := newTestTransferService(t)
		inst, err := s.registry.Get("main")
		require.NoError(t, err)
		require.NoError(t, inst.Coordinator.Refresh(context.Background()))

		testCases := []struct {
			name string
			req  CreditCardRequest
			want error
		}{
			{"No destination", CreditCardRequest{InstanceID: "main", FromAccount: checkingAccount, Amount: "1"}, ErrNoCreditCardAccountID},
			{"Not a credit card", CreditCardRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: savingsAccount, Amount: "1"}, ErrNoCreditCardAccountID},
			{"Unknown destination", CreditCardRequest{InstanceID: "main", FromAccount: checkingAccount, ToAccount: "nope", Amount: "1"}, ErrAccountNotFound},
			{"Bad from account", CreditCardRequest{InstanceID: "main", FromAccount: "K1234567", CreditCardAccountID: "cc-1", Amount: "1"}, ErrInvalidAccountNumber},
			{"Over the limit", CreditCardRequest{InstanceID: "main", FromAccount: checkingAccount, CreditCardAccountID: "cc-1", Amount: "250"}, models.ErrLimitExceeded},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := s.TransferCreditCard(context.Background(), tc.req)
				assert.ErrorIs(t, err, tc.want)
			})
		}
		assert.Empty(t, client.CreditCardTransfers())
	})
}
