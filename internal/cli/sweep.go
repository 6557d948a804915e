package cli

import (
	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/config"
)

// NewSweepCmd finalizes expired attempts once and exits. Useful from cron when the
// server-side sweeper is disabled.
func NewSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Finalize in-progress attempts whose quiz has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			b, err := openBackend(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := newService(b, cfg, log).SweepExpired(cmd.Context())
			log.WithField("finalized", n).Info("sweep finished")
			return err
		},
	}
}
