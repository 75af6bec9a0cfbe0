// Package main implements interviewctl, a CLI for running interviews against
// the math interviewer HTTP server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/math-interviewer/internal/api"
	"github.com/ashureev/math-interviewer/internal/interview"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	serverURL string
	timeout   time.Duration
	jsonOut   bool
}

func (o *options) client() *client {
	return newClient(o.serverURL, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "interviewctl",
		Short: "CLI for the math interviewer server",
		Long: `interviewctl runs and inspects interviews on a math interviewer server.

Examples:
  # Start an interview and chat interactively
  interviewctl chat

  # Send one message to an existing session
  interviewctl say 20261017_142530_1f9c04ab "I teach fourth grade."

  # Generate and save the report
  interviewctl report 20261017_142530_1f9c04ab --generate -o report.md`,
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", "http://localhost:8080", "interviewer server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "output results as JSON")

	root.AddCommand(
		newNewCmd(opts),
		newSayCmd(opts),
		newChatCmd(opts),
		newStatusCmd(opts),
		newReportCmd(opts),
		newExportCmd(opts),
		newResetCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func newNewCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new interview session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp api.SessionResponse
			if err := opts.client().doJSON(cmd.Context(), http.MethodPost, "/api/sessions/", nil, &resp); err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), opts, resp)
		},
	}
}

func newSayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "say <session-id> <message...>",
		Short: "Send one respondent message and print the reply",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			message := strings.Join(args[1:], " ")
			turn, err := opts.client().stream(cmd.Context(), args[0], message, func(fragment string) {
				if !opts.jsonOut {
					fmt.Fprint(out, fragment)
				}
			})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(out, turn)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [session-id]",
		Short: "Run an interactive interview",
		Long: `Run an interactive interview, starting a new session unless one is given.

Type a message and press enter. Commands:
  /status   show progress
  /report   generate the report
  /quit     leave (the session stays on the server)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), opts.client(), cmd.InOrStdin(), cmd.OutOrStdout(), args)
		},
	}
}

func runChat(ctx context.Context, c *client, in io.Reader, out io.Writer, args []string) error {
	var sessionID string
	if len(args) == 1 {
		sessionID = args[0]
		var payload struct {
			Transcript []api.TurnView `json:"transcript"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/transcript", nil, &payload); err != nil {
			return err
		}
		for _, t := range payload.Transcript {
			printTurn(out, t)
		}
	} else {
		var resp api.SessionResponse
		if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/", nil, &resp); err != nil {
			return err
		}
		sessionID = resp.SessionID
		fmt.Fprintf(out, "Session %s\n\n", sessionID)
		for _, t := range resp.Transcript {
			printTurn(out, t)
		}
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/status":
			var status interview.Status
			if err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &status); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			printStatus(out, status)
			continue
		case "/report":
			var rep api.ReportResponse
			if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/report", nil, &rep); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			fmt.Fprintln(out, rep.Content)
			continue
		}

		fmt.Fprint(out, "\ninterviewer: ")
		turn, err := c.stream(ctx, sessionID, line, func(fragment string) {
			fmt.Fprint(out, fragment)
		})
		fmt.Fprint(out, "\n\n")
		if err != nil {
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
				fmt.Fprintln(out, "The interview is complete. Use /report to generate the report.")
				continue
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if turn.Status.Complete {
			fmt.Fprintln(out, "The interview is complete. Use /report to generate the report.")
		}
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show interview progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var status interview.Status
			if err := opts.client().doJSON(cmd.Context(), http.MethodGet, "/api/sessions/"+args[0], nil, &status); err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func newReportCmd(opts *options) *cobra.Command {
	var generate bool
	var output string
	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Generate or download the interview report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			if generate {
				var rep api.ReportResponse
				if err := c.doJSON(cmd.Context(), http.MethodPost, "/api/sessions/"+args[0]+"/report", nil, &rep); err != nil {
					return err
				}
				if rep.Failed {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning: report generation failed; the document describes the error")
				}
			}
			data, filename, err := c.download(cmd.Context(), "/api/sessions/"+args[0]+"/report")
			if err != nil {
				return err
			}
			return emit(cmd, output, filename, data)
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a fresh report first")
	cmd.Flags().StringVarP(&output, "output", "o", "", `write to file ("." uses the server's file name)`)
	return cmd
}

func newExportCmd(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Download the session document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, filename, err := opts.client().download(cmd.Context(), "/api/sessions/"+args[0]+"/export")
			if err != nil {
				return err
			}
			return emit(cmd, output, filename, data)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `write to file ("." uses the server's file name)`)
	return cmd
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Save the session and start a new one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.SessionResponse
			if err := opts.client().doJSON(cmd.Context(), http.MethodPost, "/api/sessions/"+args[0]+"/reset", nil, &resp); err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), opts, resp)
		},
	}
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var health struct {
				Status  string            `json:"status"`
				Backend string            `json:"backend"`
				Checks  map[string]string `json:"checks"`
			}
			if err := opts.client().doJSON(cmd.Context(), http.MethodGet, "/api/health", nil, &health); err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), health)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (snapshots: %s, %s)\n", health.Status, health.Backend, health.Checks["snapshots"])
			return nil
		},
	}
}

// emit writes data to output, or to stdout when output is empty.
func emit(cmd *cobra.Command, output, filename string, data []byte) error {
	if output == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if output == "." {
		if filename == "" {
			return errors.New("server did not suggest a file name")
		}
		output = filepath.Base(filename)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s\n", output)
	return nil
}

func printSession(w io.Writer, opts *options, resp api.SessionResponse) error {
	if opts.jsonOut {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Session %s\n\n", resp.SessionID)
	for _, t := range resp.Transcript {
		printTurn(w, t)
	}
	return nil
}

func printTurn(w io.Writer, t api.TurnView) {
	speaker := "interviewer"
	if t.Role == "user" {
		speaker = "you"
	}
	fmt.Fprintf(w, "%s: %s\n\n", speaker, t.Content)
}

func printStatus(w io.Writer, s interview.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Session:\t%s\n", s.SessionID)
	fmt.Fprintf(tw, "Phase:\t%s\n", s.PhaseName)
	fmt.Fprintf(tw, "Multiplication questions:\t%d\n", s.MultiplicationQuestions)
	fmt.Fprintf(tw, "Division questions:\t%d\n", s.DivisionQuestions)
	fmt.Fprintf(tw, "Messages:\t%d\n", s.TotalMessages)
	fmt.Fprintf(tw, "Report ready:\t%t\n", s.ReportReady)
	if s.RemainingTurns > 0 {
		fmt.Fprintf(tw, "Turns before report:\t%d\n", s.RemainingTurns)
	}
	_ = tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
