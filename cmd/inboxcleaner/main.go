package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"inboxcleaner/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "inboxcleaner",
		Short:         "Find unsubscribe links in promotional mail and report them",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runScan,
	}
	config.RegisterFlags(rootCmd)
	rootCmd.AddCommand(historyCmd(), reviewCmd())
	return rootCmd
}

// setupLogger configures the standard logrus logger and returns the entry
// components log through.
func setupLogger(cfg config.Config) *logrus.Entry {
	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	return logrus.NewEntry(logger)
}
