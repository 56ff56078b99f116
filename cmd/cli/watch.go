package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vpnda/sparebank-sync/pkg/models"
	"github.com/vpnda/sparebank-sync/pkg/services"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll every instance until interrupted",
		Long: `Run the coordinators of every configured instance, logging each new
snapshot and storing the balances, until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx)
		},
	}
}

// watch runs every coordinator until ctx is done.
func (a *app) watch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, inst := range a.registry.List() {
		inst := inst
		inst.Coordinator.Subscribe(func(*models.Snapshot) {
			a.logProjection(inst)
		})
		g.Go(func() error {
			return inst.Coordinator.Run(ctx)
		})
	}

	log.Info().Int("instances", len(a.registry.List())).Msg("Watching accounts, press Ctrl+C to stop")
	err := g.Wait()
	log.Info().Msg("Stopped watching")
	return err
}

func (a *app) logProjection(inst *services.Instance) {
	p := a.projectors[inst.ID].Project(inst.Coordinator.Snapshot(), inst.Coordinator.LastUpdateSuccess(), time.Now())

	log.Info().
		Str("instance", inst.ID).
		Str("accounts", p.Status.State).
		Interface("status", p.Status.Attributes["balance_fetch_status"]).
		Bool("available", p.Status.Available).
		Msg("Accounts updated")
	for _, e := range p.Accounts {
		log.Debug().
			Str("entity", e.UniqueID).
			Str("state", e.State).
			Str("unit", e.Unit).
			Bool("available", e.Available).
			Msg("Account")
	}
}
