package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jask/offlinesync/internal/coordinator"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Probe connectivity and drain the queue once",
	Long: `Probe the server once. When it is reachable, replay every queued item
in priority then FIFO order and print the result. When it is not, the queue
is left untouched.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue length, last successful sync and offline mode",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	syncCmd.Flags().Duration("timeout", 2*time.Minute, "Give up waiting for the drain after this long")
}

func runSync(cmd *cobra.Command, _ []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	source := rt.probeOnce(ctx)
	coord, err := rt.newCoordinator(source)
	if err != nil {
		return err
	}

	done := make(chan coordinator.StatusEvent, 1)
	unsubscribe := coord.OnSyncStatusChange(func(ev coordinator.StatusEvent) {
		if ev.Status == coordinator.StatusSuccess || ev.Status == coordinator.StatusError {
			select {
			case done <- ev:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	out := cmd.OutOrStdout()
	if !coord.IsOnline() {
		info, err := coord.GetSyncStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "offline: %d item(s) remain queued\n", info.QueueLength)
		return nil
	}

	select {
	case ev := <-done:
		if ev.Status == coordinator.StatusError {
			return fmt.Errorf("sync failed: %w", ev.Err)
		}
		return renderResult(out, ev.Result)
	case <-ctx.Done():
		return fmt.Errorf("waiting for sync: %w", ctx.Err())
	}
}

func renderResult(w io.Writer, res coordinator.Result) error {
	fmt.Fprintf(w, "succeeded: %d, failed: %d\n", res.Succeeded, res.Failed)
	if len(res.Errors) == 0 {
		return nil
	}
	table := tablewriter.NewWriter(w)
	table.Header("Dropped Item", "Action", "Error")
	for _, e := range res.Errors {
		if err := table.Append(e.ItemID, e.Action, e.Message); err != nil {
			return err
		}
	}
	return table.Render()
}

func runStatus(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	coord, err := rt.newCoordinator(nil)
	if err != nil {
		return err
	}
	info, err := coord.GetSyncStatus(ctx)
	if err != nil {
		return err
	}

	offline := "unknown"
	if raw, ok, err := rt.kv.Get(ctx, coordinator.OfflineModeKey); err != nil {
		return err
	} else if ok {
		offline = string(raw)
	}
	lastSync := "never"
	if !info.LastSyncAt.IsZero() {
		lastSync = info.LastSyncAt.Local().Format(time.RFC3339)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "queued items:  %d\n", info.QueueLength)
	fmt.Fprintf(out, "last sync:     %s\n", lastSync)
	fmt.Fprintf(out, "offline mode:  %s\n", offline)
	return nil
}
