package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var instanceID, code string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize access to the bank for an instance",
		Long: `Print the authorization URL, wait for the code (or the full redirect URL)
and store the resulting token in the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.login(cmd.Context(), instanceID, code, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance to log in")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code, prompted for when empty")
	return cmd
}

func (a *app) login(ctx context.Context, instanceID, code string, in io.Reader, out io.Writer) error {
	inst, err := a.instance(instanceID)
	if err != nil {
		return err
	}
	provider := a.providers[inst.ID]

	state := uuid.NewString()
	if code == "" {
		fmt.Fprintf(out, "Open the following URL in your browser and approve access for %s:\n\n", inst.Config.Name)
		fmt.Fprintf(out, "  %s\n\n", provider.AuthCodeURL(state))
		fmt.Fprint(out, "Paste the code or the URL you were redirected to: ")

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("error reading authorization code: %w", err)
		}
		code, err = parseAuthorizationInput(line, state)
		if err != nil {
			return err
		}
	}

	if _, err := provider.Exchange(ctx, code); err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in to %s\n", inst.Config.Name)
	return nil
}

// parseAuthorizationInput accepts either a bare code or the redirect URL
// carrying code and state query parameters.
func parseAuthorizationInput(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("no authorization code given")
	}
	if !strings.Contains(input, "://") {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("authorization failed: %s %s", e, q.Get("error_description"))
	}
	if got := q.Get("state"); got != "" && got != state {
		return "", fmt.Errorf("state mismatch, start the login again")
	}
	code := q.Get("code")
	if code == "" {
		return "", fmt.Errorf("redirect URL has no code parameter")
	}
	return code, nil
}
