package http

import (
	"context"

	"github.com/vpnda/sparebank-sync/pkg/http/sparebank1"
	"github.com/vpnda/sparebank-sync/pkg/models"
)

// BankClient is the set of bank operations the sync coordinator depends on.
type BankClient interface {
	GetAccounts(ctx context.Context) ([]models.Account, error)
	GetAccountBalances(ctx context.Context, accountNumbers []string) (map[string]models.BalanceResult, error)
	TransferMoney(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error)
	TransferMoneyCreditCard(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error)
}

var (
	_ BankClient = (*sparebank1.Client)(nil)
	_ BankClient = (*sparebank1.MockClient)(nil)
)
