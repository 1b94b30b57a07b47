package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"inboxcleaner/internal/config"
	"inboxcleaner/internal/gmail"
	"inboxcleaner/internal/mbox"
	"inboxcleaner/internal/runner"
	"inboxcleaner/internal/store"
	"inboxcleaner/internal/tui"
)

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(cmd)
	if err != nil {
		return err
	}
	log := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stdout := cmd.OutOrStdout()
	mailbox, source, err := openMailbox(ctx, cfg, stdout, log)
	if err != nil {
		return err
	}

	var ledger runner.Ledger
	if cfg.DBPath != "" {
		db, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			// History is optional; the scan still runs.
			log.WithError(err).Warn("Run history disabled")
		} else {
			defer db.Close()
			ledger = db
		}
	}

	out, err := runner.New(cfg, mailbox, ledger, source, stdout, log).Run(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"run":        out.Run.ID,
		"candidates": len(out.Report.Candidates),
		"errors":     out.Report.Stats.Errors,
	}).Info("Scan finished")
	return nil
}

func openMailbox(ctx context.Context, cfg config.Config, stdout io.Writer, log *logrus.Entry) (runner.Mailbox, string, error) {
	if cfg.MboxPath != "" {
		p, err := mbox.Open(cfg.MboxPath, log)
		if err != nil {
			return nil, "", err
		}
		return p, cfg.MboxPath, nil
	}

	svc, err := gmail.NewService(ctx, gmail.Credentials{
		ClientSecretPath: cfg.CredentialsPath,
		TokenPath:        cfg.TokenPath,
	}, log)
	if err != nil {
		return nil, "", fmt.Errorf("authenticate: %w", err)
	}
	fmt.Fprintln(stdout, "Authenticated with Gmail")
	return gmail.NewProvider(svc), tui.GmailSource, nil
}
