package db

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vpnda/sparebank-sync/pkg/models"
)

func (db *DB) createAccountInfoTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS account_info (
		instance_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		account_number TEXT,
		name TEXT,
		account_type TEXT,
		balance_value TEXT,
		balance_currency TEXT,
		balance_updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (instance_id, account_id)
	)
	`

	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create account_info table: %w", err)
	}
	return err
}

// SaveSnapshotBalances stores the last known balance of every account in
// snap. Accounts without a balance keep their previous value.
func (db *DB) SaveSnapshotBalances(instanceID string, snap *models.Snapshot) error {
	if snap == nil {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO account_info (
		instance_id, account_id, account_number, name, account_type,
		balance_value, balance_currency, balance_updated_at
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(instance_id, account_id)
	DO UPDATE SET
		account_number = excluded.account_number,
		name = excluded.name,
		account_type = excluded.account_type,
		balance_value = excluded.balance_value,
		balance_currency = excluded.balance_currency,
		balance_updated_at = excluded.balance_updated_at
	`

	updatedAt := snap.LastUpdate.UTC()
	for _, acc := range snap.Accounts {
		if acc.Balance == nil {
			log.Debug().Str("account", acc.ID).Msg("no balance, keeping stored value")
			continue
		}
		_, err := tx.Exec(query, instanceID, acc.ID, acc.AccountNumber, acc.Name, acc.Type,
			acc.Balance.Amount, acc.Balance.Currency, updatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert account balance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit account balances: %w", err)
	}
	return nil
}

// GetAccountBalances returns the stored accounts of an instance ordered
// by account id.
func (db *DB) GetAccountBalances(instanceID string) ([]models.Account, error) {
	query := `
	SELECT
		account_id, account_number, name, account_type, balance_value, balance_currency
	FROM account_info
	WHERE instance_id = ?
	ORDER BY account_id
	`
	rows, err := db.Query(query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	defer rows.Close()
	var accounts []models.Account
	for rows.Next() {
		account := models.Account{Balance: &models.Balance{}}
		err := rows.Scan(
			&account.ID,
			&account.AccountNumber,
			&account.Name,
			&account.Type,
			&account.Balance.Amount,
			&account.Balance.Currency,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		account.CurrencyCode = account.Balance.Currency
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over accounts: %w", err)
	}
	return accounts, nil
}
