package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vpnda/sparebank-sync/pkg/services"
)

func runREPL(ctx context.Context, a *app, in io.Reader, out io.Writer) {
	fmt.Fprintln(out, "Welcome to the SpareBank 1 REPL!")
	fmt.Fprintln(out, "Type 'exit' or 'quit' to exit.")
	fmt.Fprintln(out, "Type 'help' to list the commands.")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		command, args := fields[0], fields[1:]

		if command == "exit" || command == "quit" {
			break
		}

		var err error
		switch command {
		case "help":
			printHelp(out)
		case "config":
			showConfig(out, a.cfg)
		case "accounts":
			err = a.listAccounts(ctx, argOrEmpty(args, 0), out)
		case "cached":
			err = a.listCachedAccounts(argOrEmpty(args, 0), out)
		case "refresh":
			var accounts []string
			if len(args) > 1 {
				accounts = args[1:]
			}
			err = a.refresh(ctx, argOrEmpty(args, 0), accounts, out)
		case "select":
			if len(args) == 0 {
				err = fmt.Errorf("usage: select <instance> [account...]")
				break
			}
			err = a.selectAccounts(args[0], args[1:], out)
		case "debit":
			err = a.replDebit(ctx, args, out)
		case "creditcard":
			err = a.replCreditCard(ctx, args, out)
		case "events":
			err = a.replEvents(args, out)
		default:
			fmt.Fprintf(out, "Unknown command %q, type 'help' for the list of commands\n", command)
		}

		if err != nil {
			log.Error().Err(err).Str("command", command).Msg("Command failed")
		}
	}

	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("Error reading input")
	}
}

func (a *app) replDebit(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: debit <instance> <from> <to> <amount> [currency] [message...]")
	}
	req := services.DebitRequest{
		InstanceID:  args[0],
		FromAccount: args[1],
		ToAccount:   args[2],
		Amount:      args[3],
		Currency:    argOrEmpty(args, 4),
	}
	if len(args) > 5 {
		req.Message = strings.Join(args[5:], " ")
	}
	return a.transferDebit(ctx, req, out)
}

func (a *app) replCreditCard(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: creditcard <instance> <from> <credit card account> <amount>")
	}
	return a.transferCreditCard(ctx, services.CreditCardRequest{
		InstanceID:  args[0],
		FromAccount: args[1],
		ToAccount:   args[2],
		Amount:      args[3],
	}, out)
}

func (a *app) replEvents(args []string, out io.Writer) error {
	limit := defaultEventLimit
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid limit %q: %w", args[1], err)
		}
		limit = n
	}
	instanceID := argOrEmpty(args, 0)
	if instanceID == "all" {
		instanceID = ""
	}
	return a.listEvents(instanceID, limit, out)
}

func argOrEmpty(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Available commands:")
	fmt.Fprintln(w, "  help                          - Show this help message")
	fmt.Fprintln(w, "  config                        - Show the current configuration")
	fmt.Fprintln(w, "  accounts [instance]           - Fetch and list accounts with balances")
	fmt.Fprintln(w, "  cached [instance]             - List the stored balances")
	fmt.Fprintln(w, "  refresh [instance] [acc...]   - Refresh everything or only the given balances")
	fmt.Fprintln(w, "  select <instance> [acc...]    - Track only the given accounts, none for all")
	fmt.Fprintln(w, "  debit <instance> <from> <to> <amount> [currency] [message]")
	fmt.Fprintln(w, "                                - Transfer money between accounts")
	fmt.Fprintln(w, "  creditcard <instance> <from> <card> <amount>")
	fmt.Fprintln(w, "                                - Pay into a credit card account")
	fmt.Fprintln(w, "  events [instance|all] [limit] - Show recent transfer attempts")
	fmt.Fprintln(w, "  exit, quit                    - Exit the REPL")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintln(w, "  The application uses a config.yaml file in the current directory.")
	fmt.Fprintln(w, "  Set oauth.clientId and oauth.clientSecret, then run the login command.")
}
