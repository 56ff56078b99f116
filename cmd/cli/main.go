package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vpnda/sparebank-sync/pkg/config"
	"github.com/vpnda/sparebank-sync/pkg/utils"
)

var (
	configPath string
	dbPath     string
	logLevel   string
	rootCmd    *cobra.Command
)

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd = &cobra.Command{
		Use:   "sparebank-sync",
		Short: "Poll SpareBank 1 accounts and move money between them",
		Long: `A CLI tool that keeps an up to date view of SpareBank 1 account balances
and submits transfers between accounts and to credit cards.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			zerolog.SetGlobalLevel(level)

			return config.InitGlobalConfig(configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database (defaults to the configured database)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive REPL",
		Long:  `Start an interactive REPL for executing commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			runREPL(cmd.Context(), a, os.Stdin, os.Stdout)
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the current configuration",
		Long:  `Show the current configuration with secrets masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			showConfig(os.Stdout, cfg)
			return nil
		},
	}

	rootCmd.AddCommand(
		replCmd,
		configCmd,
		newLoginCmd(),
		newAccountsCmd(),
		newRefreshCmd(),
		newSelectCmd(),
		newTransferCmd(),
		newEventsCmd(),
		newWatchCmd(),
	)
}

// showConfig displays the current configuration
func showConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "API Base URL:        %s\n", cfg.API.BaseURL)
	fmt.Fprintf(w, "API Timeout:         %s\n", cfg.API.Timeout)
	fmt.Fprintf(w, "OAuth Client ID:     %s\n", cfg.OAuth.ClientID)
	fmt.Fprintf(w, "OAuth Client Secret: %s\n", utils.MaskSecret(cfg.OAuth.ClientSecret))
	fmt.Fprintf(w, "OAuth Redirect URL:  %s\n", cfg.OAuth.RedirectURL)
	fmt.Fprintf(w, "Database:            %s\n", cfg.DatabasePath())
	fmt.Fprintf(w, "Poll Interval:       %s\n", cfg.PollInterval)
	fmt.Fprintf(w, "Backoff Policy:      %s\n", cfg.BackoffPolicy)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Instances (%d):\n", len(cfg.Instances))
	for _, inst := range cfg.Instances {
		selected := "all"
		if len(inst.SelectedAccounts) > 0 {
			selected = strings.Join(inst.SelectedAccounts, ", ")
		}
		fmt.Fprintf(w, "  %-12s %-20s currency=%s maxAmount=%s accounts=%s\n",
			inst.ID, inst.Name, inst.DefaultCurrency, inst.MaxAmountDecimal().StringFixed(2), selected)
	}

	if cfg.OAuth.ClientID == "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Please set oauth.clientId and oauth.clientSecret in the configuration file,")
		fmt.Fprintln(w, "then run the login command for every instance.")
	}
}
