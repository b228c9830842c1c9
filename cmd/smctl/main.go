// Command smctl is the operator CLI for a statecraft workspace: load and
// run a state machine locally, inspect its structure, replay a history
// log, and drive a running statecraftd's engine remotely.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/corestate/statecraft/internal/engine"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/platform/logger"
	"github.com/corestate/statecraft/internal/storage"
	"github.com/corestate/statecraft/internal/treeview"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "smctl",
		Short: "Inspect and drive statecraft state machines",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newInspectCommand())
	root.AddCommand(newReplayCommand())
	root.AddCommand(newControlCommand("pause"))
	root.AddCommand(newControlCommand("resume"))
	root.AddCommand(newControlCommand("stop"))
	root.AddCommand(newStatusCommand())
	return root
}

// newRunCommand loads a workspace directory and runs it to completion
// in-process, printing the final outcome.
func newRunCommand() *cobra.Command {
	var workspacePath string
	var historyDBPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load and run a state machine to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New("development")
			if err != nil {
				return err
			}
			defer log.Sync()

			store := storage.New(afero.NewOsFs())
			sm, err := store.Load(workspacePath)
			if err != nil {
				return fmt.Errorf("loading %s: %w", workspacePath, err)
			}

			var boltStore *history.BoltStore
			var historyLog *history.Log
			if historyDBPath != "" {
				boltStore, err = history.OpenBoltStore(historyDBPath)
				if err != nil {
					return fmt.Errorf("opening history store: %w", err)
				}
				defer boltStore.Close()
				historyLog = history.NewLog(boltStore)
			}

			eng := engine.New(engine.Config{}, historyLog, storage.NewLoader(store))
			outcome, err := eng.Run(cmd.Context(), sm.Root)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", outcome)
			if historyLog != nil {
				c := history.Build(historyLog.Items())
				if len(c.Records) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), treeview.RenderRunTree(c, c.Records[0].RunID))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workspacePath, "workspace", "./workspace", "path to the persisted state machine")
	cmd.Flags().StringVar(&historyDBPath, "history-db", "", "optional bbolt history database path")
	return cmd
}

// newInspectCommand renders the loaded state machine's hierarchy as an
// ASCII tree.
func newInspectCommand() *cobra.Command {
	var workspacePath string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the structure of a persisted state machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := storage.New(afero.NewOsFs())
			sm, err := store.Load(workspacePath)
			if err != nil {
				return fmt.Errorf("loading %s: %w", workspacePath, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), treeview.RenderStateTree(sm.Root))
			return nil
		},
	}
	cmd.Flags().StringVar(&workspacePath, "workspace", "./workspace", "path to the persisted state machine")
	return cmd
}

// newReplayCommand dumps the raw self-describing records a bbolt history
// store holds, optionally filtered to one run_id (history.Store.All is
// a read-only analysis dump, not a typed Item stream, so replay prints
// the records themselves rather than re-collapsing them).
func newReplayCommand() *cobra.Command {
	var historyDBPath string
	var runID string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Dump a run's raw records from the history log",
		RunE: func(cmd *cobra.Command, args []string) error {
			boltStore, err := history.OpenBoltStore(historyDBPath)
			if err != nil {
				return fmt.Errorf("opening history store: %w", err)
			}
			defer boltStore.Close()

			records, err := boltStore.All()
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			for _, r := range records {
				if runID != "" {
					if id, _ := r["run_id"].(string); id != runID {
						continue
					}
				}
				out, err := json.MarshalIndent(r, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&historyDBPath, "history-db", "./history.db", "bbolt history database path")
	cmd.Flags().StringVar(&runID, "run", "", "run id to filter to (dumps every record if omitted)")
	return cmd
}

// newControlCommand builds a thin wrapper over one of statecraftd's
// /api/engine/{verb} endpoints.
func newControlCommand(verb string) *cobra.Command {
	var serverAddr string
	var token string
	cmd := &cobra.Command{
		Use:   verb,
		Short: fmt.Sprintf("Send %s to a running statecraftd", verb),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postEngineCommand(cmd.Context(), serverAddr, token, verb)
		},
	}
	bindRemoteFlags(cmd, &serverAddr, &token)
	return cmd
}

func newStatusCommand() *cobra.Command {
	var serverAddr string
	var token string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running statecraftd's engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getEngineStatus(cmd.Context(), serverAddr, token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}
	bindRemoteFlags(cmd, &serverAddr, &token)
	return cmd
}

func bindRemoteFlags(cmd *cobra.Command, serverAddr, token *string) {
	cmd.Flags().StringVar(serverAddr, "server", "http://localhost:8080", "statecraftd base URL")
	cmd.Flags().StringVar(token, "token", "", "operator bearer token")
}

func postEngineCommand(ctx context.Context, serverAddr, token, verb string) error {
	url := serverAddr + "/api/engine/" + verb
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(nil))
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %s", verb, resp.Status)
	}
	return nil
}

func getEngineStatus(ctx context.Context, serverAddr, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverAddr+"/api/engine/status", nil)
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
