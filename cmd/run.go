package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lablnet/stepwright/api/schemas"
	"github.com/lablnet/stepwright/internal/browser"
	"github.com/lablnet/stepwright/internal/config"
	"github.com/lablnet/stepwright/internal/engine"
	"github.com/lablnet/stepwright/internal/observability"
	"github.com/lablnet/stepwright/internal/template"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [template files...]",
		Short: "Executes one or more workflow templates and emits their records",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config/env.
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.proxy", cmd.Flags().Lookup("proxy")); err != nil {
				return err
			}
			if err := viper.BindPFlag("engine.rate_limit", cmd.Flags().Lookup("rate")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			var cfg config.Config
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to unmarshal config with flag overrides: %w", err)
			}

			var templates []*schemas.TabTemplate
			for _, path := range args {
				loaded, err := template.Load(path)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				templates = append(templates, loaded...)
			}
			logger.Info("Templates loaded",
				zap.Int("files", len(args)),
				zap.Int("templates", len(templates)),
			)

			manager, err := browser.NewManager(ctx, logger, cfg.BrowserOptions())
			if err != nil {
				return fmt.Errorf("failed to initialize browser manager: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Error during browser manager shutdown", zap.Error(err))
				}
			}()

			eng := engine.New(manager, logger, cfg.Engine)

			opts := schemas.RunOptions{Browser: cfg.BrowserOptions()}
			stream := viper.GetBool("stream")
			if stream {
				// NDJSON to stdout as records arrive.
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
				opts.OnResult = func(ctx context.Context, record schemas.Record, index int) error {
					return enc.Encode(record)
				}
			}

			records, err := eng.RunTemplates(ctx, templates, opts)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by user signal")
					return fmt.Errorf("run aborted")
				}
				logger.Error("Run failed", zap.Error(err))
				return err
			}
			logger.Info("Run complete", zap.Int("records", len(records)))

			output := viper.GetString("output")
			if output != "" {
				if err := writeRecords(output, records); err != nil {
					return err
				}
				logger.Info("Records written", zap.String("path", output))
			} else if !stream {
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(records); err != nil {
					return fmt.Errorf("failed to encode records: %w", err)
				}
			}
			return nil
		},
	}

	runCmd.Flags().StringP("output", "o", "", "Write the record array to this JSON file instead of stdout.")
	runCmd.Flags().Bool("stream", false, "Emit each record to stdout as NDJSON when it is produced.")
	runCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	runCmd.Flags().String("proxy", "", "Proxy server for browser traffic. (Overrides config/env)")
	runCmd.Flags().Float64("rate", 0, "Maximum page navigations per second, 0 disables. (Overrides config/env)")

	// Flags without a config mapping still need viper visibility in RunE.
	_ = viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("stream", runCmd.Flags().Lookup("stream"))

	return runCmd
}

func writeRecords(path string, records []schemas.Record) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
