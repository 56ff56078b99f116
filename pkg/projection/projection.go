// Package projection turns coordinator snapshots into the entities shown to
// users: one status entity per instance and one balance entity per account.
package projection

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/vpnda/sparebank-sync/pkg/models"
	"github.com/vpnda/sparebank-sync/pkg/utils"
)

const (
	// StaleAfter is how long a snapshot is shown as available regardless of
	// whether the latest poll succeeded.
	StaleAfter = 3 * time.Hour

	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"

	maxStatusErrors = 3
	unknown         = "Unknown"
)

// Entity is a single externally visible record. State is empty when the
// value is unknown.
type Entity struct {
	UniqueID   string         `json:"unique_id"`
	Name       string         `json:"name"`
	State      string         `json:"state"`
	Unit       string         `json:"unit,omitempty"`
	Available  bool           `json:"available"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Projection is every entity of one instance.
type Projection struct {
	Status   Entity   `json:"status"`
	Accounts []Entity `json:"accounts"`
}

// StableAccountID returns the identifier entities use to refer to an
// account for the lifetime of a sync session.
func StableAccountID(acc models.Account, index int) string {
	return acc.StableID(index)
}

// AccountUniqueID is the unique id of the balance entity of an account.
func AccountUniqueID(instanceID, accountID string) string {
	return fmt.Sprintf("%s_account_%s", instanceID, accountID)
}

// Available reports whether entities backed by snap should be shown. Data
// younger than StaleAfter is always shown; older data follows the outcome
// of the latest poll.
func Available(snap *models.Snapshot, lastSuccess bool, now time.Time) bool {
	if snap == nil {
		return false
	}
	if !snap.LastUpdate.IsZero() && now.Sub(snap.LastUpdate) < StaleAfter {
		return true
	}
	return lastSuccess
}

// Project builds the entities of one instance from snap.
func Project(instanceID, name string, snap *models.Snapshot, lastSuccess bool, now time.Time) Projection {
	available := Available(snap, lastSuccess, now)
	p := Projection{Status: statusEntity(instanceID, name, snap, available)}
	if snap == nil {
		return p
	}

	for i, acc := range snap.Accounts {
		p.Accounts = append(p.Accounts, accountEntity(instanceID, name, acc, i, available))
	}
	return p
}

func statusEntity(instanceID, name string, snap *models.Snapshot, available bool) Entity {
	e := Entity{
		UniqueID:  instanceID + "_accounts",
		Name:      name + " Accounts",
		Available: available,
	}
	if snap == nil {
		return e
	}

	e.State = fmt.Sprint(len(snap.Accounts))
	e.Attributes = map[string]any{
		"integration_id": instanceID,
		"account_count":  len(snap.Accounts),
		"last_update":    snap.LastUpdate.UTC().Format(time.RFC3339),
	}
	if snap.BalanceFetchPartial {
		e.Attributes["balance_fetch_status"] = StatusPartialFailure
		if len(snap.BalanceFetchErrors) > 0 {
			e.Attributes["balance_fetch_errors"] = lo.Slice(snap.BalanceFetchErrors, 0, maxStatusErrors)
		}
	} else {
		e.Attributes["balance_fetch_status"] = StatusSuccess
	}
	return e
}

func accountEntity(instanceID, name string, acc models.Account, index int, available bool) Entity {
	id := acc.ID
	if id == "" {
		id = StableAccountID(acc, index)
	}

	accountName := lo.CoalesceOrEmpty(acc.Name, fmt.Sprintf("Account %d", index+1))
	e := Entity{
		UniqueID:  AccountUniqueID(instanceID, id),
		Name:      name + " " + accountName,
		Unit:      acc.Currency(),
		Available: available && acc.Balance != nil,
		Attributes: map[string]any{
			"account_number": lo.CoalesceOrEmpty(acc.AccountNumber, unknown),
			"account_name":   accountName,
			"account_type":   accountType(acc),
			"integration_id": instanceID,
		},
	}
	if acc.CreditCardAccountID != "" {
		e.Attributes["credit_card_account_id"] = acc.CreditCardAccountID
	}

	if acc.Balance != nil {
		amount, err := decimal.NewFromString(acc.Balance.Amount)
		if err != nil {
			log.Warn().Err(err).Str("account", id).Str("amount", acc.Balance.Amount).Msg("Could not parse balance")
			e.Available = false
		} else {
			e.State = amount.String()
		}
	}
	return e
}

func accountType(acc models.Account) string {
	switch {
	case acc.Description != "":
		return acc.Description
	case acc.Type != "":
		return utils.Capitalize(acc.Type)
	default:
		return unknown
	}
}

// Projector remembers every account it has projected so that accounts
// which disappear from the bank stay visible as unavailable instead of
// vanishing.
type Projector struct {
	instanceID string
	name       string

	mu    sync.Mutex
	known map[string]Entity
	order []string
}

func NewProjector(instanceID, name string) *Projector {
	return &Projector{
		instanceID: instanceID,
		name:       name,
		known:      map[string]Entity{},
	}
}

// Project projects snap and appends an unavailable entity for every
// previously seen account missing from it.
func (p *Projector) Project(snap *models.Snapshot, lastSuccess bool, now time.Time) Projection {
	proj := Project(p.instanceID, p.name, snap, lastSuccess, now)

	p.mu.Lock()
	defer p.mu.Unlock()

	present := map[string]bool{}
	for _, e := range proj.Accounts {
		present[e.UniqueID] = true
		if _, ok := p.known[e.UniqueID]; !ok {
			log.Debug().Str("instance", p.instanceID).Str("entity", e.UniqueID).Msg("New account discovered")
			p.order = append(p.order, e.UniqueID)
		}
		p.known[e.UniqueID] = e
	}

	for _, id := range p.order {
		if present[id] {
			continue
		}
		gone := p.known[id]
		gone.State = ""
		gone.Available = false
		proj.Accounts = append(proj.Accounts, gone)
	}
	return proj
}
