package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/vpnda/sparebank-sync/db"
	"github.com/vpnda/sparebank-sync/pkg/auth"
	"github.com/vpnda/sparebank-sync/pkg/config"
	"github.com/vpnda/sparebank-sync/pkg/events"
	"github.com/vpnda/sparebank-sync/pkg/http/sparebank1"
	"github.com/vpnda/sparebank-sync/pkg/models"
	"github.com/vpnda/sparebank-sync/pkg/projection"
	"github.com/vpnda/sparebank-sync/pkg/services"
)

// app wires every configured instance to its token provider, client and
// coordinator.
type app struct {
	cfg        *config.Config
	db         db.DBInterface
	registry   *services.Registry
	transfers  *services.TransferService
	providers  map[string]*auth.OAuthTokenProvider
	projectors map[string]*projection.Projector
}

func newApp() (*app, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	database, err := db.New(lo.CoalesceOrEmpty(dbPath, cfg.DatabasePath()))
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := database.Initialize(); err != nil {
		database.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	a, err := buildApp(cfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return a, nil
}

func buildApp(cfg *config.Config, database db.DBInterface) (*app, error) {
	timeout, err := cfg.APITimeout()
	if err != nil {
		return nil, err
	}
	interval, err := cfg.PollIntervalDuration()
	if err != nil {
		return nil, err
	}
	policy, err := services.NewBackoffPolicy(cfg.BackoffPolicy)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		db:         database,
		registry:   services.NewRegistry(),
		providers:  map[string]*auth.OAuthTokenProvider{},
		projectors: map[string]*projection.Projector{},
	}

	oauthConfig := auth.NewOAuthConfig(cfg.OAuth)
	for _, inst := range cfg.Instances {
		provider := auth.NewOAuthTokenProvider(inst.ID, oauthConfig, database)

		clientOpts := []sparebank1.Option{
			sparebank1.WithBaseURL(cfg.API.BaseURL),
			sparebank1.WithTimeout(timeout),
		}
		if cfg.API.Debug {
			clientOpts = append(clientOpts, sparebank1.WithDebug())
		}
		client := sparebank1.NewClient(provider, clientOpts...)

		coordinator := services.NewCoordinator(inst.ID, client,
			services.WithInterval(interval),
			services.WithBackoffPolicy(policy),
			services.WithSelectedAccounts(inst.SelectedAccounts),
		)
		coordinator.Subscribe(func(snap *models.Snapshot) {
			if err := database.SaveSnapshotBalances(inst.ID, snap); err != nil {
				log.Warn().Err(err).Str("instance", inst.ID).Msg("Could not store balances")
			}
		})

		a.registry.Register(&services.Instance{ID: inst.ID, Config: inst, Coordinator: coordinator})
		a.providers[inst.ID] = provider
		a.projectors[inst.ID] = projection.NewProjector(inst.ID, inst.Name)
	}

	publisher := events.Multi(events.LogPublisher{}, events.NewStorePublisher(database))
	a.transfers = services.NewTransferService(a.registry, publisher)

	log.Debug().Int("instances", len(cfg.Instances)).Str("policy", policy.Name()).Dur("interval", interval).Msg("Application ready")
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database")
	}
}

// instance resolves id, defaulting to the only configured instance.
func (a *app) instance(id string) (*services.Instance, error) {
	if id == "" {
		list := a.registry.List()
		if len(list) != 1 {
			return nil, fmt.Errorf("%d instances configured, choose one with --instance", len(list))
		}
		return list[0], nil
	}
	return a.registry.Get(id)
}

func (a *app) project(inst *services.Instance) projection.Projection {
	c := inst.Coordinator
	return a.projectors[inst.ID].Project(c.Snapshot(), c.LastUpdateSuccess(), time.Now())
}
