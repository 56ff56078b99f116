package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

const defaultEventLimit = 20

func newEventsCmd() *cobra.Command {
	var (
		instanceID string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent transfer attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.listEvents(instanceID, limit, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "Only show events of this instance")
	cmd.Flags().IntVar(&limit, "limit", defaultEventLimit, "Number of events to show, 0 for all")
	return cmd
}

func (a *app) listEvents(instanceID string, limit int, w io.Writer) error {
	events, err := a.db.GetTransferEvents(instanceID, limit)
	if err != nil {
		return err
	}
	printEvents(w, events)
	return nil
}

func printEvents(w io.Writer, events []*models.TransferEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No transfers recorded")
		return
	}

	fmt.Fprintf(w, "%-20s %-10s %-10s %15s %-15s %-15s %-8s %s\n",
		"Time", "Instance", "Kind", "Amount", "From", "To", "Status", "Details")
	fmt.Fprintln(w, strings.Repeat("-", 120))
	for _, e := range events {
		amount := models.NewAmount(e.Amount, lo.CoalesceOrEmpty(e.Currency, models.DefaultCurrency))
		status, details := "ok", e.PaymentID
		if !e.Success {
			status = "failed"
			details = e.FailureReason
			if len(e.ErrorCodes) > 0 {
				details = strings.Join(e.ErrorCodes, ",") + ": " + details
			}
		}
		fmt.Fprintf(w, "%-20s %-10s %-10s %15s %-15s %-15s %-8s %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.InstanceID,
			e.Kind,
			amount.Display(),
			e.FromAccount,
			lo.CoalesceOrEmpty(e.ToAccount, e.CreditCardAccountID),
			status,
			details)
	}
}
