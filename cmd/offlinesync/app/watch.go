package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jask/offlinesync/internal/coordinator"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Probe connectivity continuously and sync on every reconnect",
	Long: `Run until interrupted. The server is probed on the configured interval;
each transition from offline to online drains the queue.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prober := rt.newProber()
	coord, err := rt.newCoordinator(prober)
	if err != nil {
		return err
	}

	log := rt.logger
	coord.OnNetworkChange(func(online bool) {
		log.Info("connectivity", zap.Bool("online", online))
	})
	coord.OnSyncStatusChange(func(ev coordinator.StatusEvent) {
		switch ev.Status {
		case coordinator.StatusSuccess:
			log.Info("sync finished",
				zap.Int("succeeded", ev.Result.Succeeded),
				zap.Int("failed", ev.Result.Failed))
			for _, e := range ev.Result.Errors {
				log.Warn("item dropped", zap.String("id", e.ItemID), zap.String("action", e.Action), zap.String("error", e.Message))
			}
		case coordinator.StatusError:
			log.Error("sync failed", zap.Error(ev.Err))
		}
	})
	coord.OnConflict(func(ev coordinator.ConflictEvent) {
		log.Info("conflict resolved",
			zap.String("id", ev.Item.ID),
			zap.String("endpoint", ev.Item.Endpoint),
			zap.String("strategy", string(ev.Strategy)))
	})

	if err := coord.Start(ctx); err != nil {
		return err
	}
	defer coord.Stop()

	log.Info("watching",
		zap.String("probe_url", rt.cfg.Network.ProbeURL),
		zap.Duration("interval", rt.cfg.Network.ProbeInterval))

	// probes now and on every tick until interrupted
	prober.Run(ctx)

	log.Info("shutting down")
	return nil
}
