package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hamed0406/monitorcore/internal/capacity"
	"github.com/hamed0406/monitorcore/internal/domain"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	key  string
	http *http.Client
}

// apiError carries the status and message the API returned.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	c := &client{http: &http.Client{Timeout: 2 * time.Minute}}

	root := &cobra.Command{
		Use:           "monitorctl",
		Short:         "Manage monitors on a monitorcore API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.PersistentFlags().StringVar(&c.base, "api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&c.key, "key", os.Getenv("API_KEY"), "API key (admin key for writes)")

	root.AddCommand(monitorsCmd(c), resultsCmd(c), capacityCmd(c), testCmd(c))
	return root
}

func monitorsCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{Use: "monitors", Aliases: []string{"m"}, Short: "List and manage monitors"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List monitors, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var ms []domain.Monitor
			if err := c.do(cmd.Context(), http.MethodGet, "/api/monitors", nil, &ms); err != nil {
				return err
			}
			printMonitors(cmd.OutOrStdout(), ms)
			return nil
		},
	})

	cmd.AddCommand(addCmd(c))

	for _, action := range []string{"pause", "resume"} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action + " <id>",
			Short: strings.ToUpper(action[:1]) + action[1:] + " a monitor",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var m domain.Monitor
				if err := c.do(cmd.Context(), http.MethodPost, "/api/monitors/"+args[0]+"/"+action, nil, &m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", m.ID, paint(string(m.Status)))
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a monitor and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.do(cmd.Context(), http.MethodDelete, "/api/monitors/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <id>",
		Short: "Run a check now and record the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res domain.ExecutionResult
			if err := c.do(cmd.Context(), http.MethodPost, "/api/monitors/"+args[0]+"/execute", nil, &res); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res.Result())
			return nil
		},
	})
	return cmd
}

func addCmd(c *client) *cobra.Command {
	var (
		kind     string
		name     string
		every    int
		port     int
		keyword  string
		sslCheck bool
	)
	cmd := &cobra.Command{
		Use:   "add <target>",
		Short: "Create a monitor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(args[0])
			if kind == string(domain.KindHTTPRequest) && !strings.Contains(target, "://") {
				target = "https://" + target
			}
			payload := map[string]any{
				"name":              name,
				"type":              kind,
				"target":            target,
				"frequency_minutes": every,
				"config": domain.MonitorConfig{
					Port:           port,
					KeywordInBody:  keyword,
					EnableSSLCheck: sslCheck,
				},
			}
			var m domain.Monitor
			if err := c.do(cmd.Context(), http.MethodPost, "/api/monitors", payload, &m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s %s every %dm)\n", m.ID, m.Kind, m.Target, m.FrequencyMinutes)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&kind, "type", "t", string(domain.KindHTTPRequest), "http_request | ping_host | port_check")
	f.StringVarP(&name, "name", "n", "", "display name (defaults to the target)")
	f.IntVarP(&every, "every", "e", 5, "check frequency in minutes; 0 leaves it unscheduled")
	f.IntVar(&port, "port", 0, "port for port_check monitors")
	f.StringVar(&keyword, "keyword", "", "keyword expected in the response body")
	f.BoolVar(&sslCheck, "ssl", false, "also watch the TLS certificate")
	return cmd
}

func resultsCmd(c *client) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show recent results, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rs []domain.MonitorResult
			path := fmt.Sprintf("/api/monitors/%s/results?limit=%d", args[0], limit)
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &rs); err != nil {
				return err
			}
			for _, r := range rs {
				printResult(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of results")
	return cmd
}

func capacityCmd(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "capacity",
		Short: "Show running and queued checks against their limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var s capacity.Snapshot
			if err := c.do(cmd.Context(), http.MethodGet, "/api/capacity", nil, &s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "running %d/%d  queued %d/%d\n", s.Running, s.RunningCapacity, s.Queued, s.QueuedCapacity)
			return nil
		},
	}
}

func testCmd(c *client) *cobra.Command {
	var (
		kind string
		port int
	)
	cmd := &cobra.Command{
		Use:   "test <target>",
		Short: "Run an ad-hoc check without saving anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{
				"type":   kind,
				"target": args[0],
				"config": domain.MonitorConfig{Port: port},
			}
			var res domain.ExecutionResult
			if err := c.do(cmd.Context(), http.MethodPost, "/api/checks/test", payload, &res); err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res.Result())
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", string(domain.KindHTTPRequest), "http_request | ping_host | port_check")
	cmd.Flags().IntVar(&port, "port", 0, "port for port_check")
	return cmd
}

func printMonitors(w io.Writer, ms []domain.Monitor) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tTARGET\tEVERY\tLAST CHECK\tSTATUS")
	for _, m := range ms {
		last := "-"
		if m.LastCheckAt != nil {
			last = m.LastCheckAt.Local().Format(time.DateTime)
		}
		// status goes last; colour codes would skew tabwriter widths
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dm\t%s\t%s\n", m.ID, m.Name, m.Kind, m.Target, m.FrequencyMinutes, last, paint(string(m.Status)))
	}
	_ = tw.Flush()
}

func printResult(w io.Writer, r domain.MonitorResult) {
	rt := "-"
	if r.ResponseTimeMs != nil {
		rt = fmt.Sprintf("%dms", *r.ResponseTimeMs)
	}
	line := fmt.Sprintf("%s  %6s  %s", r.CheckedAt.Local().Format(time.DateTime), rt, paint(string(r.Status)))
	if r.Details.StatusCode != 0 {
		line += fmt.Sprintf("  http %d", r.Details.StatusCode)
	}
	if r.Details.ErrorMessage != "" {
		line += "  " + r.Details.ErrorMessage
	}
	fmt.Fprintln(w, line)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
