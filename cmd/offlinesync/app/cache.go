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

	"github.com/jask/offlinesync/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Read and manage the offline cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a cached payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheGet,
}

var cachePutCmd = &cobra.Command{
	Use:   "put KEY JSON",
	Short: "Store a JSON payload",
	Args:  cobra.ExactArgs(2),
	RunE:  runCachePut,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached keys, sizes and ages",
	Args:  cobra.NoArgs,
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [KEY]",
	Short: "Remove one entry, or every entry when no key is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheClear,
}

func init() {
	cacheGetCmd.Flags().Duration("max-age", -1, "Treat entries older than this as missing (default from config)")
	cacheGetCmd.Flags().String("path", "", "gjson path to extract from the payload")

	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cachePutCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func runCacheGet(cmd *cobra.Command, args []string) error {
	maxAge, _ := cmd.Flags().GetDuration("max-age")
	path, _ := cmd.Flags().GetString("path")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if maxAge < 0 {
		maxAge = rt.cfg.Cache.DefaultMaxAge
	}
	payload, ok := rt.cache.Get(cmd.Context(), args[0], maxAge)
	if !ok {
		return fmt.Errorf("cache miss: %s", args[0])
	}
	if path != "" {
		res := gjson.GetBytes(payload, path)
		if !res.Exists() {
			return fmt.Errorf("path %q not found in %s", path, args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Raw)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(payload))
	return nil
}

func runCachePut(cmd *cobra.Command, args []string) error {
	if !gjson.Valid(args[1]) {
		return fmt.Errorf("payload is not valid JSON")
	}

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	cache.Put(cmd.Context(), rt.cache, args[0], json.RawMessage(args[1]))
	return nil
}

func runCacheStats(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	return renderCacheStats(cmd.OutOrStdout(), rt.cache.Stats(cmd.Context()), rt.cache.SchemaVersion())
}

func renderCacheStats(w io.Writer, stats cache.Stats, schemaVersion string) error {
	table := tablewriter.NewWriter(w)
	table.Header("Key", "Size", "Age")
	for _, it := range stats.Items {
		if err := table.Append(it.Key, strconv.Itoa(it.SizeBytes), it.Age.Truncate(time.Second).String()); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d item(s), %d bytes, schema version %s\n", stats.ItemCount, stats.TotalSizeBytes, schemaVersion)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if len(args) == 1 {
		rt.cache.Remove(cmd.Context(), args[0])
		return nil
	}
	rt.cache.ClearAll(cmd.Context())
	return nil
}
