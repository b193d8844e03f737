package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hms/hms-console/internal/hms"
	"github.com/hms/hms-console/internal/platform/apiclient"
	"github.com/hms/hms-console/internal/session"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if password == "" {
				password, err = readPassword(cmd)
				if err != nil {
					return err
				}
			}

			s, err := a.api.Login(cmd.Context(), email, password)
			if s.Authenticated() {
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\nLanding view: %s\n",
					s.DisplayName(), s.Role, hms.LandingPath(s.Role))
			}
			return err
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password (read from stdin when empty)")
	return cmd
}

func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.api.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			s := a.session.Current()
			if !s.Authenticated() {
				return hms.ErrNotLoggedIn
			}
			printSession(cmd, s, time.Now())
			return nil
		},
	}
}

func printSession(cmd *cobra.Command, s session.Session, now time.Time) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "User:\t%s\n", s.DisplayName())
	if u := s.Username(); u != "" {
		fmt.Fprintf(w, "Username:\t%s\n", u)
	}
	fmt.Fprintf(w, "Role:\t%s\n", s.Role)
	fmt.Fprintf(w, "Landing view:\t%s\n", hms.LandingPath(s.Role))

	if claims, err := s.Claims(); err == nil && !claims.ExpiresAt.IsZero() {
		state := "valid"
		if claims.Expired(now) {
			state = "expired"
		}
		fmt.Fprintf(w, "Token expires:\t%s (%s)\n", claims.ExpiresAt.Local().Format(time.RFC3339), state)
	}
	w.Flush()
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Fetch an API path with the stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			data, _ := cmd.Flags().GetString("data")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			opts := apiclient.Options{}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				opts.Method = http.MethodPost
				opts.Body = apiclient.JSONString(data)
			}

			resp, err := a.client.Request(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return writeResponse(cmd, resp, out)
		},
	}
	cmd.Flags().String("out", "", "Write the response body to this file")
	cmd.Flags().String("data", "", "POST this JSON document instead of issuing a GET")
	return cmd
}

// writeResponse pretty-prints JSON to stdout; binary bodies need --out.
func writeResponse(cmd *cobra.Command, resp *apiclient.Response, out string) error {
	body := resp.Binary
	if resp.Kind == apiclient.KindJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, resp.JSON, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		body = buf.Bytes()
	}

	if out != "" {
		if err := os.WriteFile(out, body, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes (%s) to %s\n", len(body), resp.ContentType, out)
		return nil
	}
	if resp.Kind == apiclient.KindBinary {
		return fmt.Errorf("binary response (%s, %d bytes); use --out to save it", resp.ContentType, len(body))
	}
	_, err := cmd.OutOrStdout().Write(body)
	return err
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Load every list at once and show counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.api.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			printDashboard(cmd, d)
			if len(d.Errors) == len(hms.Resources) {
				return errors.New("no list could be loaded")
			}
			return nil
		},
	}
}

func printDashboard(cmd *cobra.Command, d *hms.Dashboard) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tCOUNT\tSTATUS")
	counts := d.Counts()
	for _, r := range hms.Resources {
		status := "ok"
		if err := d.Errors[r]; err != nil {
			status = err.Error()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", r, counts[r], status)
	}
	w.Flush()

	if len(d.Errors) > 0 {
		failed := make([]string, 0, len(d.Errors))
		for r := range d.Errors {
			failed = append(failed, r)
		}
		sort.Strings(failed)
		fmt.Fprintf(cmd.ErrOrStderr(), "unavailable: %s\n", strings.Join(failed, ", "))
	}
}
