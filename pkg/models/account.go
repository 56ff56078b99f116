package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	// AccountTypeCreditCard is the account type the bank reports for credit cards.
	AccountTypeCreditCard = "CREDITCARD"

	// DefaultCurrency is used when the bank omits a currency code.
	DefaultCurrency = "NOK"
)

// Balance is the balance of an account as reported by the bank.
type Balance struct {
	// Amount is a decimal string, e.g. "1234.56"
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// ToAmount converts the balance into an Amount for display purposes.
func (b *Balance) ToAmount() Amount {
	return Amount{Value: b.Amount, Currency: b.Currency}
}

// Account is a bank account reported by the accounts endpoint.
type Account struct {
	// ID is the stable identifier of the account for the lifetime of a
	// sync session. It is resolved once when the account list is fetched.
	ID string `json:"id"`

	AccountNumber       string `json:"accountNumber,omitempty"`
	CreditCardAccountID string `json:"creditCardAccountID,omitempty"`
	AccountID           string `json:"accountId,omitempty"`

	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Type         string `json:"type,omitempty"`
	CurrencyCode string `json:"currencyCode,omitempty"`

	Balance *Balance `json:"balance,omitempty"`

	// InlineBalance is set when the balance came with the account list and
	// must not be fetched again through the balance endpoint.
	InlineBalance bool `json:"-"`
}

// Currency returns the account currency, falling back to NOK.
func (a *Account) Currency() string {
	if a.CurrencyCode == "" {
		return DefaultCurrency
	}
	return a.CurrencyCode
}

// IsCreditCard reports whether the balance endpoint must be skipped for
// this account. Credit card account numbers start with a 'K' and are
// rejected by the balance endpoint.
func (a *Account) IsCreditCard() bool {
	return a.Type == AccountTypeCreditCard || strings.HasPrefix(a.AccountNumber, "K")
}

// Matches reports whether any of the account identifiers equals id.
func (a *Account) Matches(id string) bool {
	if id == "" {
		return false
	}
	return a.ID == id || a.AccountNumber == id || a.CreditCardAccountID == id || a.AccountID == id
}

// Snapshot is the coordinator's view of the accounts. A published snapshot
// is never modified; use Clone to derive a new one.
type Snapshot struct {
	Accounts            []Account `json:"accounts"`
	LastUpdate          time.Time `json:"last_update"`
	BalanceFetchPartial bool      `json:"balance_fetch_partial"`
	BalanceFetchErrors  []string  `json:"balance_fetch_errors,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := &Snapshot{
		Accounts:            make([]Account, len(s.Accounts)),
		LastUpdate:          s.LastUpdate,
		BalanceFetchPartial: s.BalanceFetchPartial,
		BalanceFetchErrors:  append([]string(nil), s.BalanceFetchErrors...),
	}
	for i, acc := range s.Accounts {
		if acc.Balance != nil {
			b := *acc.Balance
			acc.Balance = &b
		}
		out.Accounts[i] = acc
	}
	return out
}

// FindAccount returns the first account matching id.
func (s *Snapshot) FindAccount(id string) (*Account, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Accounts {
		if s.Accounts[i].Matches(id) {
			return &s.Accounts[i], true
		}
	}
	return nil, false
}

// BalanceResult is the outcome of a single balance lookup.
type BalanceResult struct {
	AccountBalance string
	Err            error
}

// OK reports whether the lookup produced a balance.
func (r BalanceResult) OK() bool {
	return r.Err == nil
}

// StableID resolves the identifier used for the account for the rest of a
// sync session. index is the position of the account in the filtered list
// and is only used when the bank reports no identifier at all.
func (a *Account) StableID(index int) string {
	switch {
	case a.AccountNumber != "":
		return a.AccountNumber
	case a.CreditCardAccountID != "":
		return a.CreditCardAccountID
	case a.AccountID != "":
		return a.AccountID
	default:
		return fmt.Sprintf("account_%d", index)
	}
}
