package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spmagent/pkg/mq"
	"spmagent/pkg/outbox"
)

func newDispatchOutboxCmd(flags *globalFlags) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "dispatch-outbox",
		Short: "Publish pending outbox events to the message broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, pool, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer pool.Close()

			publisher, err := mq.NewPublisher(cfg.MQ.URL, log)
			if err != nil {
				return fmt.Errorf("connect mq: %w", err)
			}
			defer publisher.Close()

			d := newDispatcher(cfg.Outbox.Interval, cfg.Outbox.BatchSize, cfg.Outbox.MaxRetries, outbox.NewRepository(pool), publisher, log)
			if once {
				n, err := d.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dispatched %d events\n", n)
				return nil
			}

			log.Info("Outbox dispatcher running")
			d.Start(ctx)
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "dispatch a single batch and exit")
	return cmd
}

func newOutboxReplayCmd(flags *globalFlags) *cobra.Command {
	var (
		id     int64
		failed bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "outbox-replay",
		Short: "Republish a single outbox event or all failed ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (id > 0) == failed {
				return errors.New("exactly one of --id or --failed is required")
			}
			ctx := cmd.Context()

			cfg, log, pool, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer log.Sync()
			defer pool.Close()

			publisher, err := mq.NewPublisher(cfg.MQ.URL, log)
			if err != nil {
				return fmt.Errorf("connect mq: %w", err)
			}
			defer publisher.Close()

			replay := outbox.NewReplayService(outbox.NewRepository(pool), publisher)
			if id > 0 {
				if err := replay.ReplayEvent(ctx, id); err != nil {
					return err
				}
				log.Info("Replayed outbox event", zap.Int64("event_id", id))
				return nil
			}

			n, err := replay.ReplayFailedEvents(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d failed events\n", n)
			return nil
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "outbox event id to replay")
	cmd.Flags().BoolVar(&failed, "failed", false, "replay failed events")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum failed events to replay")
	return cmd
}
