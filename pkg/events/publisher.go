// Package events delivers transfer events to whoever needs to know about
// them: the log, the local event history, or any other sink.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

// EventMoneyTransferred is the name transfer events are published under.
const EventMoneyTransferred = "sparebank1_pengerobot_money_transferred"

// Publisher receives every transfer event. Publish is called synchronously
// after the transfer has been decided.
type Publisher interface {
	Publish(ctx context.Context, event models.TransferEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event models.TransferEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event models.TransferEvent) error {
	return f(ctx, event)
}

// LogPublisher writes events to the application log.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event models.TransferEvent) error {
	l := log.Info()
	if !event.Success {
		l = log.Warn().Str("reason", event.FailureReason).Int("httpCode", event.HTTPCode).Strs("traceIds", event.TraceIDs)
	}
	l.Str("event", EventMoneyTransferred).
		Str("id", event.ID).
		Str("instance", event.InstanceID).
		Str("kind", string(event.Kind)).
		Str("amount", event.Amount.StringFixed(2)).
		Str("currency", event.Currency).
		Str("from", event.FromAccount).
		Str("to", event.ToAccount).
		Str("creditCardAccountId", event.CreditCardAccountID).
		Str("paymentId", event.PaymentID).
		Bool("success", event.Success).
		Msg("Transfer event")
	return nil
}

// EventStore persists transfer events.
type EventStore interface {
	SaveTransferEvent(event *models.TransferEvent) error
}

// StorePublisher appends every event to an EventStore.
type StorePublisher struct {
	store EventStore
}

func NewStorePublisher(store EventStore) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Publish(ctx context.Context, event models.TransferEvent) error {
	if err := p.store.SaveTransferEvent(&event); err != nil {
		return fmt.Errorf("failed to store transfer event %s: %w", event.ID, err)
	}
	return nil
}

type multiPublisher []Publisher

// Multi publishes to every publisher in order. All publishers are called
// even when one fails; the errors are joined.
func Multi(publishers ...Publisher) Publisher {
	return multiPublisher(publishers)
}

func (m multiPublisher) Publish(ctx context.Context, event models.TransferEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Publisher = PublisherFunc(nil)
	_ Publisher = LogPublisher{}
	_ Publisher = (*StorePublisher)(nil)
	_ Publisher = multiPublisher(nil)
)
