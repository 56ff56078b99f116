package sparebank1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

type debitTransferRequest struct {
	Amount       string `json:"amount"`
	FromAccount  string `json:"fromAccount"`
	ToAccount    string `json:"toAccount"`
	CurrencyCode string `json:"currencyCode"`
	Message      string `json:"message,omitempty"`
	DueDate      string `json:"dueDate,omitempty"`
}

type creditCardTransferRequest struct {
	Amount              string `json:"amount"`
	FromAccount         string `json:"fromAccount"`
	CreditCardAccountID string `json:"creditCardAccountId"`
	DueDate             string `json:"dueDate,omitempty"`
}

// TransferMoney starts a domestic transfer between two accounts. The amount
// is sent with exactly two decimals, rounded half-up.
func (c *Client) TransferMoney(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	body := debitTransferRequest{
		Amount:       req.Amount.StringFixed(2),
		FromAccount:  req.FromAccount,
		ToAccount:    req.ToAccount,
		CurrencyCode: req.CurrencyOrDefault(),
		Message:      req.Message,
		DueDate:      req.DueDate,
	}

	log.Info().
		Str("from", req.FromAccount).
		Str("to", req.ToAccount).
		Str("amount", body.Amount).
		Str("currency", body.CurrencyCode).
		Msg("Submitting transfer")

	return c.postTransfer(ctx, debitTransferPath, body)
}

// TransferMoneyCreditCard pays from an account into a credit card account.
func (c *Client) TransferMoneyCreditCard(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	body := creditCardTransferRequest{
		Amount:              req.Amount.StringFixed(2),
		FromAccount:         req.FromAccount,
		CreditCardAccountID: req.CreditCardAccountID,
		DueDate:             req.DueDate,
	}

	log.Info().
		Str("from", req.FromAccount).
		Str("creditCardAccountId", req.CreditCardAccountID).
		Str("amount", body.Amount).
		Msg("Submitting credit card transfer")

	return c.postTransfer(ctx, creditTransferPath, body)
}

func (c *Client) postTransfer(ctx context.Context, path string, body any) (*models.TransferResult, error) {
	var raw map[string]any
	if err := c.doRequest(ctx, http.MethodPost, path, nil, body, &raw); err != nil {
		return nil, err
	}
	return toTransferResult(raw), nil
}

func toTransferResult(raw map[string]any) *models.TransferResult {
	res := &models.TransferResult{Raw: raw}
	if raw == nil {
		return res
	}
	if id, ok := raw["paymentId"]; ok && id != nil {
		res.PaymentID = fmt.Sprint(id)
	}
	if warnings, ok := raw["warnings"].([]any); ok {
		res.Warnings = warnings
	}
	return res
}
