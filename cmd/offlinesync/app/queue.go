package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/jask/offlinesync/internal/queue"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue ACTION ENDPOINT",
	Short: "Queue a mutation for replay",
	Long: `Queue a mutation for replay against the server. The item is stored
durably and sent by the next sync, in priority then FIFO order.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnqueue,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or clear the sync queue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending items in replay order",
	Args:  cobra.NoArgs,
	RunE:  runQueueList,
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every pending item",
	Args:  cobra.NoArgs,
	RunE:  runQueueClear,
}

func init() {
	enqueueCmd.Flags().StringP("method", "X", "POST", "HTTP method (GET, POST, PUT, PATCH, DELETE)")
	enqueueCmd.Flags().StringP("priority", "p", "medium", "Priority (high, medium, low)")
	enqueueCmd.Flags().Int("max-retries", 0, "Attempts before the item is dropped (0 = configured default)")
	enqueueCmd.Flags().StringP("data", "d", "", "JSON payload")

	queueListCmd.Flags().String("format", "table", "Output format (table, json)")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	method, _ := cmd.Flags().GetString("method")
	priority, _ := cmd.Flags().GetString("priority")
	maxRetries, _ := cmd.Flags().GetInt("max-retries")
	data, _ := cmd.Flags().GetString("data")

	req := queue.Request{
		Action:     args[0],
		Endpoint:   args[1],
		Method:     queue.Method(method),
		Priority:   queue.Priority(priority),
		MaxRetries: maxRetries,
	}
	if data != "" {
		if !gjson.Valid(data) {
			return fmt.Errorf("--data is not valid JSON")
		}
		req.Payload = json.RawMessage(data)
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.queue.Enqueue(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runQueueList(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	items, err := rt.queue.List(cmd.Context())
	if err != nil {
		return err
	}
	queue.SortForReplay(items)

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	return renderQueue(cmd.OutOrStdout(), items, time.Now())
}

func renderQueue(w io.Writer, items []queue.Item, now time.Time) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Priority", "Method", "Endpoint", "Action", "Retries", "Age")
	for _, it := range items {
		if err := table.Append(
			it.ID,
			string(it.Priority),
			string(it.Method),
			it.Endpoint,
			it.Action,
			strconv.Itoa(it.RetryCount)+"/"+strconv.Itoa(it.MaxRetries),
			now.Sub(it.EnqueuedAt).Truncate(time.Second).String(),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func runQueueClear(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.queue.Len(cmd.Context())
	if err != nil {
		return err
	}
	if err := rt.queue.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d queued item(s)\n", n)
	return nil
}
