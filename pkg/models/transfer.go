package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferKind distinguishes plain account transfers from credit card
// repayments.
type TransferKind string

const (
	TransferKindDebit      TransferKind = "debit"
	TransferKindCreditCard TransferKind = "creditcard"
)

// TransferRequest is a validated transfer ready to be submitted. It is
// never persisted.
type TransferRequest struct {
	FromAccount string
	// ToAccount is the destination for debit transfers.
	ToAccount string
	// CreditCardAccountID is the destination for credit card transfers.
	CreditCardAccountID string

	Amount   decimal.Decimal
	Currency string
	Message  string
	// DueDate is formatted as YYYY-MM-DD, empty means immediately
	DueDate string
}

// CurrencyOrDefault returns the transfer currency, NOK when unset.
func (r TransferRequest) CurrencyOrDefault() string {
	if r.Currency == "" {
		return DefaultCurrency
	}
	return r.Currency
}

// TransferResult is the decoded response of a transfer endpoint.
type TransferResult struct {
	PaymentID string         `json:"paymentId,omitempty"`
	Warnings  []any          `json:"warnings,omitempty"`
	Raw       map[string]any `json:"-"`
}

// TransferEvent is published after every transfer attempt that reached
// the bank.
type TransferEvent struct {
	ID                  string            `json:"id"`
	InstanceID          string            `json:"integration_id"`
	InstanceName        string            `json:"name,omitempty"`
	Kind                TransferKind      `json:"kind"`
	Currency            string            `json:"currency,omitempty"`
	Amount              decimal.Decimal   `json:"amount"`
	FromAccount         string            `json:"from_account"`
	ToAccount           string            `json:"to_account,omitempty"`
	CreditCardAccountID string            `json:"credit_card_account_id,omitempty"`
	Description         string            `json:"description"`
	Success             bool              `json:"success"`
	Result              *TransferResult   `json:"result,omitempty"`
	PaymentID           string            `json:"payment_id,omitempty"`
	Warnings            []any             `json:"warnings,omitempty"`
	FailureReason       string            `json:"failure_reason,omitempty"`
	HTTPCode            int               `json:"http_code,omitempty"`
	Errors              []StructuredError `json:"errors,omitempty"`
	ErrorCodes          []string          `json:"error_codes,omitempty"`
	TraceIDs            []string          `json:"trace_ids,omitempty"`
	DueDate             string            `json:"due_date,omitempty"`
	Timestamp           time.Time         `json:"timestamp"`
}
