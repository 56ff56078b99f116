package db

import (
	"golang.org/x/oauth2"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

// DBInterface defines the interface for database operations
type DBInterface interface {
	Initialize() error
	Close() error
	GetToken(instanceID string) (*oauth2.Token, error)
	SaveToken(instanceID string, token *oauth2.Token) error
	DeleteToken(instanceID string) error
	SaveTransferEvent(event *models.TransferEvent) error
	GetTransferEvents(instanceID string, limit int) ([]*models.TransferEvent, error)
	SaveSnapshotBalances(instanceID string, snap *models.Snapshot) error
	GetAccountBalances(instanceID string) ([]models.Account, error)
}

// Ensure DB implements DBInterface
var _ DBInterface = (*DB)(nil)

// Ensure MockDB implements DBInterface
var _ DBInterface = (*MockDB)(nil)
