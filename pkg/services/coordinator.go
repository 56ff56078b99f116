package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	bankhttp "github.com/vpnda/sparebank-sync/pkg/http"
	"github.com/vpnda/sparebank-sync/pkg/models"
)

const DefaultPollInterval = time.Hour

// Coordinator polls one bank connection, keeps the latest account snapshot
// and runs transfers followed by a narrow balance refresh.
//
// A published snapshot is never modified. Merges work on a clone which is
// then published in its place.
type Coordinator struct {
	instanceID string
	client     bankhttp.BankClient
	policy     BackoffPolicy
	clock      Clock
	logger     zerolog.Logger

	defaultInterval time.Duration

	// coalesces concurrent full polls
	group singleflight.Group
	// serializes full polls and targeted refreshes
	pollMu sync.Mutex
	wake   chan struct{}

	mu          sync.RWMutex
	snapshot    *models.Snapshot
	backoff     BackoffState
	lastSuccess bool
	interval    time.Duration
	selected    []string
	listeners   []func(*models.Snapshot)
}

type CoordinatorOption func(*Coordinator)

// WithSelectedAccounts limits the snapshot to the given account
// identifiers. An empty selection tracks every account.
func WithSelectedAccounts(ids []string) CoordinatorOption {
	return func(c *Coordinator) {
		c.selected = append([]string(nil), ids...)
	}
}

func WithInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.defaultInterval = d
		}
	}
}

func WithBackoffPolicy(p BackoffPolicy) CoordinatorOption {
	return func(c *Coordinator) {
		if p != nil {
			c.policy = p
		}
	}
}

func WithClock(clock Clock) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func NewCoordinator(instanceID string, client bankhttp.BankClient, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		instanceID:      instanceID,
		client:          client,
		policy:          RateLimitPolicy{},
		clock:           RealClock(),
		defaultInterval: DefaultPollInterval,
		wake:            make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.interval = c.defaultInterval
	c.logger = log.With().Str("instance", instanceID).Logger()
	return c
}

func (c *Coordinator) InstanceID() string {
	return c.instanceID
}

// Snapshot returns the current snapshot, nil before the first successful
// poll. Callers must not modify it.
func (c *Coordinator) Snapshot() *models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastUpdateSuccess reports whether the most recent full poll succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

func (c *Coordinator) BackoffState() BackoffState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backoff
}

// Interval is the current polling interval. It grows to cover a backoff
// window and returns to the default after the next successful poll.
func (c *Coordinator) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

func (c *Coordinator) SelectedAccounts() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.selected...)
}

// SetSelectedAccounts changes the tracked accounts and asks Run for a poll.
func (c *Coordinator) SetSelectedAccounts(ids []string) {
	c.mu.Lock()
	c.selected = append([]string(nil), ids...)
	c.mu.Unlock()

	c.logger.Info().Strs("accounts", ids).Msg("Account selection changed")
	c.RequestRefresh()
}

// RequestRefresh asks Run to poll as soon as possible without waiting for
// the result.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Subscribe registers fn to be called with every published snapshot. fn
// runs on the refreshing goroutine and must not start a refresh itself.
func (c *Coordinator) Subscribe(fn func(*models.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Run polls immediately and then on every interval until ctx is done. A
// pending poll is dropped on shutdown; an in-flight one fails with ctx.
func (c *Coordinator) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("Coordinator stopped")
			return nil
		case <-timer.C:
		case <-c.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("Scheduled refresh failed")
		}

		next := c.nextDelay()
		c.logger.Debug().Dur("next", next).Msg("Scheduling next refresh")
		timer.Reset(next)
	}
}

func (c *Coordinator) nextDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	delay := c.interval
	if active := c.backoff.Active(c.clock.Now()); active != nil && active.Remaining > delay {
		delay = active.Remaining
	}
	return delay
}

// Refresh runs a full poll. Concurrent callers share a single poll and all
// receive its result.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err, shared := c.group.Do("poll", func() (any, error) {
		return nil, c.poll(ctx)
	})
	if shared {
		c.logger.Debug().Msg("Joined in-flight refresh")
	}
	return err
}

func (c *Coordinator) poll(ctx context.Context) error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	if active := c.activeBackoff(); active != nil {
		c.logger.Warn().
			Str("reason", string(active.Reason)).
			Int("remaining", int(active.Remaining.Seconds())).
			Msg("Backoff active, skipping refresh")
		return active
	}

	accounts, err := c.client.GetAccounts(ctx)
	if err != nil {
		return c.pollFailed(err)
	}
	c.logger.Debug().Int("count", len(accounts)).Msg("Fetched accounts")

	snap := c.buildSnapshot(ctx, accounts)

	// a cancelled poll must leave the old snapshot in place
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh cancelled: %w", err)
	}

	c.mu.Lock()
	if c.backoff != (BackoffState{}) {
		c.logger.Info().Msg("Successful fetch, resetting backoff")
	}
	c.backoff = BackoffState{}
	c.interval = c.defaultInterval
	c.lastSuccess = true
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

func (c *Coordinator) activeBackoff() *models.BackoffActiveError {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backoff.Active(c.clock.Now())
}

func (c *Coordinator) pollFailed(err error) error {
	now := c.clock.Now()

	c.mu.Lock()
	c.lastSuccess = false
	window := c.policy.Record(&c.backoff, err, now)
	if window > c.interval {
		c.interval = window
	}
	c.mu.Unlock()

	if window > 0 {
		c.logger.Warn().Err(err).
			Int("seconds", int(window.Seconds())).
			Time("until", now.Add(window)).
			Msg("Backing off")
	} else {
		c.logger.Error().Err(err).Msg("Refresh failed")
	}
	return fmt.Errorf("failed to fetch accounts: %w", err)
}

// buildSnapshot filters accounts, assigns stable ids and fetches the
// balances that did not come with the account list. Balance failures are
// recorded on the snapshot and never fail the poll.
func (c *Coordinator) buildSnapshot(ctx context.Context, accounts []models.Account) *models.Snapshot {
	selected := c.SelectedAccounts()
	if len(selected) > 0 {
		before := len(accounts)
		accounts = lo.Filter(accounts, func(acc models.Account, _ int) bool {
			return lo.SomeBy(selected, acc.Matches)
		})
		c.logger.Debug().Int("before", before).Int("after", len(accounts)).Msg("Filtered to selected accounts")
	}

	for i := range accounts {
		accounts[i].ID = accounts[i].StableID(i)
	}

	snap := &models.Snapshot{Accounts: accounts}

	var numbers []string
	for _, acc := range accounts {
		switch {
		case acc.IsCreditCard():
			c.logger.Debug().Str("account", acc.ID).Str("type", acc.Type).Msg("Skipping balance fetch for credit card")
		case acc.InlineBalance:
			c.logger.Debug().Str("account", acc.ID).Msg("Balance already in account list")
		case acc.AccountNumber == "":
			c.logger.Debug().Str("account", acc.ID).Msg("Skipping balance fetch for account without account number")
		default:
			numbers = append(numbers, acc.AccountNumber)
		}
	}

	if len(numbers) > 0 {
		results, err := c.client.GetAccountBalances(ctx, numbers)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Could not fetch account balances")
			snap.BalanceFetchErrors = append(snap.BalanceFetchErrors, err.Error())
		}
		_, errs := mergeBalances(snap, results)
		snap.BalanceFetchErrors = append(snap.BalanceFetchErrors, errs...)
	}

	snap.BalanceFetchPartial = len(snap.BalanceFetchErrors) > 0
	snap.LastUpdate = c.clock.Now()
	return snap
}

// mergeBalances writes successful results onto the matching accounts of
// snap and returns how many were updated and a message per failure.
func mergeBalances(snap *models.Snapshot, results map[string]models.BalanceResult) (int, []string) {
	updated := 0
	var errs []string
	for i := range snap.Accounts {
		acc := &snap.Accounts[i]
		if acc.AccountNumber == "" || acc.InlineBalance {
			continue
		}
		res, ok := results[acc.AccountNumber]
		if !ok {
			continue
		}
		if !res.OK() {
			errs = append(errs, fmt.Sprintf("%s: %v", acc.AccountNumber, res.Err))
			continue
		}
		acc.Balance = &models.Balance{Amount: res.AccountBalance, Currency: acc.Currency()}
		updated++
	}
	return updated, errs
}

func (c *Coordinator) publish(snap *models.Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	listeners := append([]func(*models.Snapshot){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// RefreshBalances fetches balances for the given account numbers only and
// merges them into the current snapshot, which is then marked partial.
// Failed lookups are added to the snapshot's balance errors. Inline and
// credit card balances are skipped. Without a snapshot it runs a full poll
// instead.
func (c *Coordinator) RefreshBalances(ctx context.Context, accountNumbers []string) error {
	numbers := lo.Uniq(lo.Compact(accountNumbers))
	if len(numbers) == 0 {
		return nil
	}

	if c.Snapshot() == nil {
		c.logger.Debug().Msg("No snapshot yet, running full refresh")
		return c.Refresh(ctx)
	}

	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	if active := c.activeBackoff(); active != nil {
		return active
	}

	// balances that come with the account list are never fetched separately
	current := c.Snapshot()
	numbers = lo.Reject(numbers, func(n string, _ int) bool {
		acc, ok := current.FindAccount(n)
		return ok && (acc.InlineBalance || acc.IsCreditCard())
	})
	if len(numbers) == 0 {
		c.logger.Debug().Msg("No fetchable balances to refresh")
		return nil
	}

	results, err := c.client.GetAccountBalances(ctx, numbers)
	if err != nil {
		return fmt.Errorf("failed to refresh balances: %w", err)
	}

	// a full poll may have replaced the snapshot while we waited on pollMu
	next := c.Snapshot().Clone()
	updated, errs := mergeBalances(next, results)
	for _, e := range errs {
		c.logger.Warn().Str("error", e).Msg("Could not refresh balance")
	}
	if updated == 0 && len(errs) == 0 {
		c.logger.Debug().Strs("accounts", numbers).Msg("Targeted refresh updated no accounts")
		return nil
	}

	next.BalanceFetchErrors = append(next.BalanceFetchErrors, errs...)

	next.BalanceFetchPartial = true
	next.LastUpdate = c.clock.Now()
	c.publish(next)

	c.logger.Debug().Int("updated", updated).Msg("Merged refreshed balances")
	return nil
}

// TransferMoney submits a transfer between two accounts and refreshes
// both balances afterwards. A failing refresh never fails the transfer.
func (c *Coordinator) TransferMoney(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	res, err := c.client.TransferMoney(ctx, req)
	if err != nil {
		return nil, c.transferFailed("Transfer failed", err)
	}

	c.refreshAfterTransfer(ctx, req.FromAccount, req.ToAccount)
	return res, nil
}

// TransferMoneyCreditCard pays into a credit card account and refreshes
// the source balance afterwards.
func (c *Coordinator) TransferMoneyCreditCard(ctx context.Context, req models.TransferRequest) (*models.TransferResult, error) {
	res, err := c.client.TransferMoneyCreditCard(ctx, req)
	if err != nil {
		return nil, c.transferFailed("Credit card transfer failed", err)
	}

	c.refreshAfterTransfer(ctx, req.FromAccount)
	return res, nil
}

func (c *Coordinator) transferFailed(msg string, err error) error {
	if models.IsAPIError(err) {
		c.logger.Error().Err(err).Msg(msg)
		return err
	}
	c.logger.Error().Err(err).Msg("Unexpected error during transfer")
	return &models.UpstreamError{
		Message: fmt.Sprintf("unexpected error: %v", err),
		Err:     err,
	}
}

func (c *Coordinator) refreshAfterTransfer(ctx context.Context, accountNumbers ...string) {
	if c.Snapshot() == nil {
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Refresh after transfer failed")
		}
		return
	}
	if err := c.RefreshBalances(ctx, accountNumbers); err != nil {
		c.logger.Debug().Err(err).Msg("Balance refresh failed, falling back to full refresh")
		if err := c.Refresh(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Refresh after transfer failed")
		}
	}
}
