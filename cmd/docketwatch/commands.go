package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"DocketWatch/internal/app"
	"DocketWatch/internal/config"
	"DocketWatch/internal/domain"
	"DocketWatch/internal/logging"
	"DocketWatch/internal/tracing"
)

// withApp loads configuration, optionally validates credentials, and runs fn
// against a fully wired application.
func withApp(ctx context.Context, validate bool, fn func(context.Context, *app.Application, *slog.Logger) error) error {
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if validate {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			return err
		}
	}

	shutdown, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("application close failed", "error", err)
		}
	}()

	return fn(ctx, application, logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the detection, drain and reset schedules plus the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.Application, logger *slog.Logger) error {
				logger.Info("docketwatch started", "version", Version)
				err := a.Serve(ctx)
				logger.Info("docketwatch stopped")
				return err
			})
		},
	}
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one detection cycle over every monitored docket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				report, err := a.Pipeline().RunCycle(ctx, time.Now())
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func checkCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "check [docket]",
		Short: "Check one docket now, optionally with a filing-count override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				report, err := a.Pipeline().CheckDocket(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "targeted fetch size (clamped to the configured maximum)")
	return cmd
}

func drainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Deliver every due notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				stats, err := a.Pipeline().Drain(ctx)
				if err != nil {
					return err
				}
				return printJSON(stats)
			})
		},
	}
}

func resetDelugeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-deluge",
		Short: "Clear deluge flags set before the latest reset boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.Application, _ *slog.Logger) error {
				cleared, err := a.Pipeline().DailyReset(ctx, time.Now())
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"cleared": cleared})
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.Application, logger *slog.Logger) error {
				if err := a.Migrate(ctx); err != nil {
					return err
				}
				logger.Info("schema migrated")
				return nil
			})
		},
	}
}

func subscribeCmd() *cobra.Command {
	var (
		name   string
		tier   string
		digest string
	)
	cmd := &cobra.Command{
		Use:   "subscribe [email] [docket]",
		Short: "Subscribe a recipient to a docket (creates both if needed)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, docket := strings.ToLower(strings.TrimSpace(args[0])), strings.TrimSpace(args[1])
			d := domain.DigestType(digest)
			if !d.Valid() || d == domain.DigestSeed {
				return fmt.Errorf("digest must be immediate, daily or weekly")
			}
			t := domain.Tier(tier)
			if t != domain.TierFree && t != domain.TierPro {
				return fmt.Errorf("tier must be free or pro")
			}

			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.Application, logger *slog.Logger) error {
				repo := a.Repository()
				recipientID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String()
				if err := repo.UpsertRecipient(ctx, domain.Recipient{ID: recipientID, Email: email, Name: name, Tier: t}); err != nil {
					return err
				}
				sub := domain.Subscription{ID: uuid.NewString(), RecipientID: recipientID, DocketNumber: docket, DigestType: d}
				if err := repo.Subscribe(ctx, sub); err != nil {
					return err
				}
				logger.Info("subscription saved", "recipient", recipientID, "docket", docket, "digest", d)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "recipient display name")
	cmd.Flags().StringVar(&tier, "tier", string(domain.TierFree), "content tier (free or pro)")
	cmd.Flags().StringVar(&digest, "digest", string(domain.DigestDaily), "digest cadence (immediate, daily, weekly)")
	return cmd
}
