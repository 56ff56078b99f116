package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vpnda/sparebank-sync/pkg/events"
	"github.com/vpnda/sparebank-sync/pkg/models"
	"github.com/vpnda/sparebank-sync/pkg/validation"
)

var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrSameAccount           = errors.New("from account and to account must be different")
	ErrInvalidAccountNumber  = errors.New("invalid account number")
	ErrNoCreditCardAccountID = errors.New("no credit card account id")
	ErrInvalidDueDate        = errors.New("invalid due date")
)

// DebitRequest is an unvalidated request to move money between accounts.
type DebitRequest struct {
	InstanceID  string
	FromAccount string
	ToAccount   string
	Amount      string
	// Currency defaults to the currency of the from account, then to the
	// instance default currency.
	Currency string
	Message  string
	DueDate  string
}

// CreditCardRequest is an unvalidated request to pay into a credit card.
type CreditCardRequest struct {
	InstanceID  string
	FromAccount string
	// ToAccount identifies the credit card account in the snapshot. It is
	// only used when CreditCardAccountID is empty.
	ToAccount           string
	CreditCardAccountID string
	Amount              string
	DueDate             string
}

// TransferService validates transfer requests, routes them to the right
// coordinator and publishes the outcome.
type TransferService struct {
	registry  *Registry
	publisher events.Publisher
	clock     Clock
}

func NewTransferService(registry *Registry, publisher events.Publisher) *TransferService {
	if publisher == nil {
		publisher = events.LogPublisher{}
	}
	return &TransferService{
		registry:  registry,
		publisher: publisher,
		clock:     RealClock(),
	}
}

// TransferDebit validates req and transfers between two accounts. Invalid
// requests fail before anything is sent to the bank. Every attempt that
// reaches the bank publishes an event, and failures are returned.
func (s *TransferService) TransferDebit(ctx context.Context, req DebitRequest) (*models.TransferResult, error) {
	inst, err := s.registry.Get(req.InstanceID)
	if err != nil {
		return nil, err
	}

	from, to := cleanAccountNumber(req.FromAccount), cleanAccountNumber(req.ToAccount)
	if from == to {
		return nil, ErrSameAccount
	}
	for _, acc := range []string{from, to} {
		if !validation.ValidateNorwegianAccountNumber(acc) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidAccountNumber, acc)
		}
	}
	if err := validateDueDate(req.DueDate); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = inst.Config.DefaultCurrency
		if acc, ok := inst.Coordinator.Snapshot().FindAccount(from); ok && acc.CurrencyCode != "" {
			currency = acc.CurrencyCode
		}
	}

	amount, err := validation.ValidateAmountWithCurrencyConversion(
		req.Amount, currency, inst.Config.DefaultCurrency, inst.Config.MaxAmountDecimal())
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	transfer := models.TransferRequest{
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount,
		Currency:    currency,
		Message:     req.Message,
		DueDate:     req.DueDate,
	}
	event := s.newEvent(inst, models.TransferKindDebit, transfer)
	event.Description = req.Message

	res, err := inst.Coordinator.TransferMoney(ctx, transfer)
	s.finish(ctx, &event, res, err)
	if err != nil {
		return nil, fmt.Errorf("transfer failed: %w", err)
	}

	log.Info().
		Str("instance", inst.ID).
		Str("amount", amount.StringFixed(2)).
		Str("currency", currency).
		Str("from", from).
		Str("to", to).
		Msg("Successfully transferred")
	return res, nil
}

// TransferCreditCard validates req and pays into a credit card account.
// The amount is always in the instance default currency.
func (s *TransferService) TransferCreditCard(ctx context.Context, req CreditCardRequest) (*models.TransferResult, error) {
	inst, err := s.registry.Get(req.InstanceID)
	if err != nil {
		return nil, err
	}

	from := cleanAccountNumber(req.FromAccount)
	if !validation.ValidateNorwegianAccountNumber(from) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccountNumber, from)
	}
	if err := validateDueDate(req.DueDate); err != nil {
		return nil, err
	}

	ccID, err := resolveCreditCardAccountID(inst.Coordinator.Snapshot(), req)
	if err != nil {
		return nil, err
	}

	amount, err := validation.ValidateAmountWithCurrencyConversion(
		req.Amount, inst.Config.DefaultCurrency, inst.Config.DefaultCurrency, inst.Config.MaxAmountDecimal())
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	transfer := models.TransferRequest{
		FromAccount:         from,
		CreditCardAccountID: ccID,
		Amount:              amount,
		Currency:            inst.Config.DefaultCurrency,
		DueDate:             req.DueDate,
	}
	event := s.newEvent(inst, models.TransferKindCreditCard, transfer)

	res, err := inst.Coordinator.TransferMoneyCreditCard(ctx, transfer)
	s.finish(ctx, &event, res, err)
	if err != nil {
		return nil, fmt.Errorf("credit card transfer failed: %w", err)
	}

	log.Info().
		Str("instance", inst.ID).
		Str("amount", amount.StringFixed(2)).
		Str("from", from).
		Str("creditCardAccountId", ccID).
		Msg("Successfully transferred to credit card")
	return res, nil
}

func resolveCreditCardAccountID(snap *models.Snapshot, req CreditCardRequest) (string, error) {
	if req.CreditCardAccountID != "" {
		return req.CreditCardAccountID, nil
	}
	if req.ToAccount == "" {
		return "", ErrNoCreditCardAccountID
	}

	acc, ok := snap.FindAccount(req.ToAccount)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAccountNotFound, req.ToAccount)
	}
	if acc.CreditCardAccountID == "" {
		return "", fmt.Errorf("%w: account %s is not a credit card account", ErrNoCreditCardAccountID, req.ToAccount)
	}
	return acc.CreditCardAccountID, nil
}

func (s *TransferService) newEvent(inst *Instance, kind models.TransferKind, req models.TransferRequest) models.TransferEvent {
	return models.TransferEvent{
		ID:                  uuid.New().String(),
		InstanceID:          inst.ID,
		InstanceName:        inst.Config.Name,
		Kind:                kind,
		Currency:            req.Currency,
		Amount:              req.Amount,
		FromAccount:         req.FromAccount,
		ToAccount:           req.ToAccount,
		CreditCardAccountID: req.CreditCardAccountID,
		DueDate:             req.DueDate,
	}
}

// finish fills in the outcome of a transfer and publishes the event. A
// publishing failure is logged and never changes the transfer outcome.
func (s *TransferService) finish(ctx context.Context, event *models.TransferEvent, res *models.TransferResult, err error) {
	event.Timestamp = s.clock.Now().UTC()

	if err == nil {
		event.Success = true
		event.Result = res
		if res != nil {
			event.PaymentID = res.PaymentID
			event.Warnings = res.Warnings
		}
	} else {
		event.FailureReason = err.Error()
		var upstream *models.UpstreamError
		if errors.As(err, &upstream) {
			event.HTTPCode = upstream.Status
			if len(upstream.Errors) > 0 {
				event.Errors = upstream.Errors
				event.ErrorCodes = upstream.ErrorCodes()
				event.TraceIDs = upstream.TraceIDs()
			}
		}
	}

	if perr := s.publisher.Publish(ctx, *event); perr != nil {
		log.Error().Err(perr).Str("event", event.ID).Msg("Failed to publish transfer event")
	}
}

func cleanAccountNumber(s string) string {
	return strings.NewReplacer(" ", "", ".", "").Replace(strings.TrimSpace(s))
}

func validateDueDate(dueDate string) error {
	if dueDate == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, dueDate); err != nil {
		return fmt.Errorf("%w %q, expected YYYY-MM-DD", ErrInvalidDueDate, dueDate)
	}
	return nil
}
