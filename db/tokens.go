package db

import (
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

func (db *DB) createTokenTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS oauth_tokens (
		instance_id TEXT PRIMARY KEY,
		access_token TEXT NOT NULL,
		refresh_token TEXT,
		token_type TEXT,
		expiry TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create oauth_tokens table: %w", err)
	}
	return nil
}

// SaveToken stores the token of an instance, replacing the previous one.
func (db *DB) SaveToken(instanceID string, token *oauth2.Token) error {
	query := `
	INSERT INTO oauth_tokens (instance_id, access_token, refresh_token, token_type, expiry, updated_at)
	VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(instance_id) DO UPDATE SET
		access_token = excluded.access_token,
		refresh_token = excluded.refresh_token,
		token_type = excluded.token_type,
		expiry = excluded.expiry,
		updated_at = CURRENT_TIMESTAMP
	`

	var expiry string
	if !token.Expiry.IsZero() {
		expiry = token.Expiry.UTC().Format(time.RFC3339)
	}

	_, err := db.Exec(query, instanceID, token.AccessToken, token.RefreshToken, token.TokenType, expiry)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// GetToken returns the stored token of an instance, nil when there is none.
func (db *DB) GetToken(instanceID string) (*oauth2.Token, error) {
	query := `
	SELECT access_token, refresh_token, token_type, expiry
	FROM oauth_tokens
	WHERE instance_id = ?
	LIMIT 1
	`

	var (
		token  oauth2.Token
		expiry string
	)
	err := db.QueryRow(query, instanceID).Scan(
		&token.AccessToken,
		&token.RefreshToken,
		&token.TokenType,
		&expiry,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if expiry != "" {
		token.Expiry, err = time.Parse(time.RFC3339, expiry)
		if err != nil {
			return nil, fmt.Errorf("failed to parse token expiry %q: %w", expiry, err)
		}
	}

	return &token, nil
}

// DeleteToken forgets the token of an instance.
func (db *DB) DeleteToken(instanceID string) error {
	if _, err := db.Exec(`DELETE FROM oauth_tokens WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
