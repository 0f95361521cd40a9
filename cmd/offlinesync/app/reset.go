package app

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/offlinesync/internal/service"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the cache, the sync queue and sync metadata",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "Answer yes to all questions")
}

func runReset(cmd *cobra.Command, _ []string) error {
	yes, _ := cmd.Flags().GetBool("yes")

	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !yes && !confirm(cmd, "Delete all cached data and pending sync items?") {
		return nil
	}

	svc := &service.MaintenanceService{DB: rt.db}
	res, err := svc.Reset(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries and %d sync entries\n", res.CacheEntries, res.SyncEntries)
	return nil
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (yes/no): ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y"
}
