// Command gapreport runs the monitoring gap analysis ad hoc over local CSV
// files and prints the results to stdout.
//
// Usage:
//
//	gapreport analyze \
//	  --source castnet=data/castnet_2019.csv,data/castnet_2020.csv \
//	  --source nadp=data/nadp.csv \
//	  --coords data/sites.csv \
//	  --distance 100
//
//	gapreport validate --sources sources.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gapreport",
		Short: "Find missing weekly observations in monitoring networks",
		Long: `gapreport reconciles each monitoring site against its weekly cadence,
lists the dates on which several sites were missing together, and groups
co-missing sites that lie within a distance threshold of each other.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// newLogger writes text logs to the command's stderr so stdout stays
// reserved for results.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", raw)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})), nil
}
