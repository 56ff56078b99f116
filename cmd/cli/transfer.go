package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vpnda/sparebank-sync/pkg/models"
	"github.com/vpnda/sparebank-sync/pkg/services"
)

func newTransferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer money between accounts",
	}
	cmd.AddCommand(newDebitCmd(), newCreditCardCmd())
	return cmd
}

func newDebitCmd() *cobra.Command {
	var req services.DebitRequest

	cmd := &cobra.Command{
		Use:   "debit",
		Short: "Transfer money from one account to another",
		Example: `  sparebank-sync transfer debit --from 86011117947 --to 42012345679 --amount 150.50
  sparebank-sync transfer debit --from 8601.11.17947 --to 4201.23.45679 --amount 20 --currency EUR --message Rent`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.transferDebit(cmd.Context(), req, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&req.InstanceID, "instance", "", "Instance to transfer with")
	cmd.Flags().StringVar(&req.FromAccount, "from", "", "Account number to transfer from")
	cmd.Flags().StringVar(&req.ToAccount, "to", "", "Account number to transfer to")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Amount to transfer")
	cmd.Flags().StringVar(&req.Currency, "currency", "", "Currency, defaults to the currency of the from account")
	cmd.Flags().StringVar(&req.Message, "message", "", "Message shown on the transfer")
	cmd.Flags().StringVar(&req.DueDate, "due-date", "", "Due date as YYYY-MM-DD, defaults to today")
	for _, name := range []string{"from", "to", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newCreditCardCmd() *cobra.Command {
	var req services.CreditCardRequest

	cmd := &cobra.Command{
		Use:   "creditcard",
		Short: "Pay into a credit card account",
		Example: `  sparebank-sync transfer creditcard --from 86011117947 --to K1234567 --amount 500
  sparebank-sync transfer creditcard --from 86011117947 --credit-card-id 2f1c9a --amount 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.transferCreditCard(cmd.Context(), req, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&req.InstanceID, "instance", "", "Instance to transfer with")
	cmd.Flags().StringVar(&req.FromAccount, "from", "", "Account number to transfer from")
	cmd.Flags().StringVar(&req.ToAccount, "to", "", "Credit card account to pay, looked up in the account list")
	cmd.Flags().StringVar(&req.CreditCardAccountID, "credit-card-id", "", "Credit card account id, skips the lookup")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Amount to transfer")
	cmd.Flags().StringVar(&req.DueDate, "due-date", "", "Due date as YYYY-MM-DD, defaults to today")
	for _, name := range []string{"from", "amount"} {
		_ = cmd.MarkFlagRequired(name)
	}
	cmd.MarkFlagsOneRequired("to", "credit-card-id")
	return cmd
}

func (a *app) transferDebit(ctx context.Context, req services.DebitRequest, w io.Writer) error {
	inst, err := a.instance(req.InstanceID)
	if err != nil {
		return err
	}
	req.InstanceID = inst.ID

	// the from account currency is only known once accounts have been fetched
	if req.Currency == "" {
		a.ensureSnapshot(ctx, inst)
	}

	res, err := a.transfers.TransferDebit(ctx, req)
	if err != nil {
		return err
	}
	printTransferResult(w, res)
	return nil
}

func (a *app) transferCreditCard(ctx context.Context, req services.CreditCardRequest, w io.Writer) error {
	inst, err := a.instance(req.InstanceID)
	if err != nil {
		return err
	}
	req.InstanceID = inst.ID

	if req.CreditCardAccountID == "" {
		a.ensureSnapshot(ctx, inst)
	}

	res, err := a.transfers.TransferCreditCard(ctx, req)
	if err != nil {
		return err
	}
	printTransferResult(w, res)
	return nil
}

// ensureSnapshot runs a full refresh when the instance has not polled yet.
// Failures are logged; the transfer decides whether it can go ahead.
func (a *app) ensureSnapshot(ctx context.Context, inst *services.Instance) {
	if inst.Coordinator.Snapshot() != nil {
		return
	}
	if err := inst.Coordinator.Refresh(ctx); err != nil {
		log.Warn().Err(err).Str("instance", inst.ID).Msg("Could not fetch accounts before transfer")
	}
}

func printTransferResult(w io.Writer, res *models.TransferResult) {
	if res == nil || res.PaymentID == "" {
		fmt.Fprintln(w, "Transfer accepted")
	} else {
		fmt.Fprintf(w, "Transfer accepted, payment id %s\n", res.PaymentID)
	}
	if res == nil {
		return
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %v\n", warning)
	}
}
