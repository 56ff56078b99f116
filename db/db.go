package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vpnda/sparebank-sync/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the necessary tables if they don't exist
func (db *DB) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS transfer_events (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		kind TEXT,
		amount_value TEXT,
		amount_currency TEXT,
		from_account TEXT,
		to_account TEXT,
		success BOOLEAN,
		payment_id TEXT,
		failure_reason TEXT,
		http_code INTEGER,
		payload TEXT,
		created_at INTEGER
	)
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create transfer_events table: %w", err)
	}

	if err := db.createTokenTable(); err != nil {
		return err
	}

	return db.createAccountInfoTable()
}

// SaveTransferEvent appends a transfer event. Events are never updated.
func (db *DB) SaveTransferEvent(event *models.TransferEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode transfer event: %w", err)
	}

	query := `
	INSERT INTO transfer_events (
		id, instance_id, kind, amount_value, amount_currency, from_account, to_account,
		success, payment_id, failure_reason, http_code, payload, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	toAccount := event.ToAccount
	if toAccount == "" {
		toAccount = event.CreditCardAccountID
	}

	_, err = db.Exec(
		query,
		event.ID,
		event.InstanceID,
		string(event.Kind),
		event.Amount.StringFixed(2),
		event.Currency,
		event.FromAccount,
		toAccount,
		event.Success,
		event.PaymentID,
		event.FailureReason,
		event.HTTPCode,
		string(payload),
		event.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transfer event: %w", err)
	}

	return nil
}

// GetTransferEvents returns the most recent events of an instance, newest
// first. An empty instanceID returns events of every instance and a
// non-positive limit returns all of them.
func (db *DB) GetTransferEvents(instanceID string, limit int) ([]*models.TransferEvent, error) {
	query := `
	SELECT payload
	FROM transfer_events
	WHERE (? = '' OR instance_id = ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.Query(query, instanceID, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer events: %w", err)
	}
	defer rows.Close()

	var events []*models.TransferEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan transfer event: %w", err)
		}

		event := &models.TransferEvent{}
		if err := json.Unmarshal([]byte(payload), event); err != nil {
			return nil, fmt.Errorf("failed to decode transfer event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer events: %w", err)
	}

	return events, nil
}
