package sparebank1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

var accountsQuery = url.Values{
	"includeNokAccounts":        {"true"},
	"includeCurrencyAccounts":   {"true"},
	"includeBsuAccounts":        {"true"},
	"includeCreditCardAccounts": {"false"},
	"includeAskAccounts":        {"false"},
	"includePensionAccounts":    {"false"},
}

// GetAccounts lists the accounts of the authenticated user. Both the
// {"accounts": [...]} envelope and a bare array are accepted.
func (c *Client) GetAccounts(ctx context.Context) ([]models.Account, error) {
	var raw json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, accountsPath, accountsQuery, nil, &raw); err != nil {
		return nil, err
	}

	var list []accountDTO
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode accounts: %w", err)
		}
	} else {
		var env accountsEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("failed to decode accounts: %w", err)
		}
		list = env.Accounts
	}

	log.Debug().Int("count", len(list)).Msg("Fetched accounts")

	return lo.Map(list, func(dto accountDTO, _ int) models.Account {
		return dto.toModel()
	}), nil
}

// GetAccountBalances fetches the balance of every account number with one
// request each, since the API has no bulk endpoint. A failing account is
// logged and reported as a failed result without aborting the batch. Only
// token and context errors abort.
func (c *Client) GetAccountBalances(ctx context.Context, accountNumbers []string) (map[string]models.BalanceResult, error) {
	results := make(map[string]models.BalanceResult, len(accountNumbers))

	for _, accNo := range accountNumbers {
		var resp balanceResponse
		err := c.doRequest(ctx, http.MethodPost, balancePath, nil, balanceRequest{AccountNumber: accNo}, &resp)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			if !models.IsAPIError(err) {
				return results, err
			}
			log.Error().Err(err).Str("account", accNo).Msg("Could not fetch balance")
			results[accNo] = models.BalanceResult{Err: err}
			continue
		}

		if resp.AccountBalance == nil {
			results[accNo] = models.BalanceResult{
				Err: errors.New("balance response is missing accountBalance"),
			}
			continue
		}
		results[accNo] = models.BalanceResult{AccountBalance: resp.AccountBalance.String()}
	}

	return results, nil
}

type accountsEnvelope struct {
	Accounts []accountDTO `json:"accounts"`
}

type accountDTO struct {
	AccountNumber       string `json:"accountNumber"`
	CreditCardAccountID string `json:"creditCardAccountID"`
	AccountID           string `json:"accountId"`
	AccountIDUpper      string `json:"AccountId"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	Type                string `json:"type"`
	CurrencyCode        string `json:"currencyCode"`

	// number, string or {amount, currency}
	Balance json.RawMessage `json:"balance"`
}

type inlineBalance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (dto accountDTO) toModel() models.Account {
	acc := models.Account{
		AccountNumber:       dto.AccountNumber,
		CreditCardAccountID: dto.CreditCardAccountID,
		AccountID:           lo.CoalesceOrEmpty(dto.AccountID, dto.AccountIDUpper),
		Name:                dto.Name,
		Description:         dto.Description,
		Type:                dto.Type,
		CurrencyCode:        dto.CurrencyCode,
	}

	if b, ok := parseInlineBalance(dto.Balance, acc.Currency()); ok {
		acc.Balance = b
		acc.InlineBalance = true
	}
	return acc
}

func parseInlineBalance(raw json.RawMessage, currency string) (*models.Balance, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}

	if raw[0] == '{' {
		var ib inlineBalance
		if err := json.Unmarshal(raw, &ib); err != nil {
			log.Warn().Err(err).RawJSON("balance", raw).Msg("Ignoring unreadable inline balance")
			return nil, false
		}
		return &models.Balance{
			Amount:   ib.Amount.String(),
			Currency: lo.CoalesceOrEmpty(ib.Currency, currency),
		}, true
	}

	// decimal.Decimal accepts both quoted and bare numbers
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		log.Warn().Err(err).RawJSON("balance", raw).Msg("Ignoring unreadable inline balance")
		return nil, false
	}
	return &models.Balance{Amount: d.String(), Currency: currency}, true
}

type balanceRequest struct {
	AccountNumber string `json:"accountNumber"`
}

type balanceResponse struct {
	AccountBalance *json.Number `json:"accountBalance"`
}
