package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vpnda/sparebank-sync/pkg/config"
	"github.com/vpnda/sparebank-sync/pkg/models"
	"github.com/vpnda/sparebank-sync/pkg/projection"
)

func newAccountsCmd() *cobra.Command {
	var (
		instanceID string
		cached     bool
	)

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts and balances",
		Long:  `Fetch the accounts of an instance and print their balances. With --cached the last stored balances are printed without contacting the bank.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if cached {
				return a.listCachedAccounts(instanceID, os.Stdout)
			}
			return a.listAccounts(cmd.Context(), instanceID, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance to list")
	cmd.Flags().BoolVar(&cached, "cached", false, "Print the stored balances instead of fetching")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	var (
		instanceID string
		accounts   []string
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh accounts and balances",
		Long:  `Run a full refresh, or with --accounts only refresh the balances of the given account numbers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.refresh(cmd.Context(), instanceID, accounts, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance to refresh")
	cmd.Flags().StringSliceVar(&accounts, "accounts", nil, "Account numbers to refresh")
	return cmd
}

func newSelectCmd() *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "select [account...]",
		Short: "Choose the accounts to track",
		Long:  `Store the accounts an instance tracks. Without arguments every account is tracked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.selectAccounts(instanceID, args, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance to configure")
	return cmd
}

func (a *app) listAccounts(ctx context.Context, instanceID string, w io.Writer) error {
	inst, err := a.instance(instanceID)
	if err != nil {
		return err
	}
	if err := inst.Coordinator.Refresh(ctx); err != nil {
		log.Error().Err(err).Str("instance", inst.ID).Msg("Error refreshing accounts")
	}
	printProjection(w, a.project(inst))
	return nil
}

func (a *app) listCachedAccounts(instanceID string, w io.Writer) error {
	inst, err := a.instance(instanceID)
	if err != nil {
		return err
	}
	accounts, err := a.db.GetAccountBalances(inst.ID)
	if err != nil {
		return err
	}
	printCachedAccounts(w, accounts)
	return nil
}

func (a *app) refresh(ctx context.Context, instanceID string, accounts []string, w io.Writer) error {
	inst, err := a.instance(instanceID)
	if err != nil {
		return err
	}

	if len(accounts) > 0 {
		err = inst.Coordinator.RefreshBalances(ctx, accounts)
	} else {
		err = inst.Coordinator.Refresh(ctx)
	}
	if err != nil {
		return err
	}

	printStatus(w, a.project(inst).Status)
	return nil
}

func (a *app) selectAccounts(instanceID string, accounts []string, w io.Writer) error {
	inst, err := a.instance(instanceID)
	if err != nil {
		return err
	}
	if err := config.SetSelectedAccounts(inst.ID, accounts); err != nil {
		return err
	}
	inst.Coordinator.SetSelectedAccounts(accounts)

	if len(accounts) == 0 {
		fmt.Fprintf(w, "%s now tracks all accounts\n", inst.Config.Name)
	} else {
		fmt.Fprintf(w, "%s now tracks %s\n", inst.Config.Name, strings.Join(accounts, ", "))
	}
	return nil
}

func printStatus(w io.Writer, status projection.Entity) {
	if status.State == "" {
		fmt.Fprintln(w, "No account data available")
		return
	}
	fmt.Fprintf(w, "%s: %s accounts, last update %v, balances: %v\n",
		status.Name, status.State, status.Attributes["last_update"], status.Attributes["balance_fetch_status"])
	if errs, ok := status.Attributes["balance_fetch_errors"].([]string); ok {
		for _, e := range errs {
			fmt.Fprintf(w, "  ! %s\n", e)
		}
	}
}

func printProjection(w io.Writer, p projection.Projection) {
	printStatus(w, p.Status)
	if len(p.Accounts) == 0 {
		fmt.Fprintln(w, "No accounts found")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-15s %-30s %-15s %20s %-10s %-12s\n", "Account", "Name", "Type", "Balance", "Available", "Card ID")
	fmt.Fprintln(w, strings.Repeat("-", 107))
	for _, e := range p.Accounts {
		name, _ := e.Attributes["account_name"].(string)
		balance := "-"
		if e.State != "" {
			amount := models.Amount{Value: e.State, Currency: e.Unit}
			balance = amount.Display()
		}
		cardID, _ := e.Attributes["credit_card_account_id"].(string)
		fmt.Fprintf(w, "%-15s %-30s %-15s %20s %-10t %-12s\n",
			e.Attributes["account_number"],
			lo.Substring(name, 0, 30),
			e.Attributes["account_type"],
			balance,
			e.Available,
			cardID)
	}
}

func printCachedAccounts(w io.Writer, accounts []models.Account) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No stored balances, run accounts or refresh first")
		return
	}

	fmt.Fprintf(w, "Found %d accounts:\n\n", len(accounts))
	fmt.Fprintf(w, "%-15s %-30s %20s\n", "Account", "Name", "Balance")
	fmt.Fprintln(w, strings.Repeat("-", 67))
	for _, acc := range accounts {
		balance := "-"
		if acc.Balance != nil {
			amount := acc.Balance.ToAmount()
			balance = amount.Display()
		}
		fmt.Fprintf(w, "%-15s %-30s %20s\n",
			acc.ID,
			lo.Substring(acc.Name, 0, 30),
			balance)
	}
}
