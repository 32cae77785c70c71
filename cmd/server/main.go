// emergency-button - SMS alert relay for emergency buttons
// Copyright (C) 2025  emergency-button contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// server receives emergency button SMS webhooks, logs every message to a
// Google Sheet and books a Google Meet with the button owner's contacts.
//
// Configuration is read from the environment, optionally seeded from a .env
// file in the working directory:
//
//	CREDENTIAL_FILE   OAuth client secrets JSON
//	SHEET_TOKEN       token file for the Sheets scope
//	CALENDAR_TOKEN    token file for the Calendar scope
//	GOOGLE_SHEET      spreadsheet id
//	PORT              listen port (default 3000)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/jredh-dev/emergency-button/config"
	"github.com/jredh-dev/emergency-button/internal/alert"
	"github.com/jredh-dev/emergency-button/internal/calendar"
	"github.com/jredh-dev/emergency-button/internal/googleauth"
	"github.com/jredh-dev/emergency-button/internal/handlers"
	"github.com/jredh-dev/emergency-button/internal/ledger"
	"github.com/jredh-dev/emergency-button/internal/logging"
	"github.com/jredh-dev/emergency-button/internal/spreadsheet"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	envFile := flag.String("env-file", ".env", "Optional dotenv file to load")
	authOnly := flag.Bool("authorize", false, "Obtain and store OAuth tokens, then exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("emergency-button %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		os.Exit(0)
	}

	if _, err := os.Stat(*envFile); err == nil {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	cfg := config.Load()

	logger, err := logging.New("emergency-button", cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(cfg, logger, *authOnly); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, authOnly bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth := googleauth.New(cfg.Google.CredentialFile, logger)

	sheetCred, err := auth.Authenticate(ctx, map[string][]string{
		cfg.Google.SheetToken: {sheets.SpreadsheetsScope},
	})
	if err != nil {
		return fmt.Errorf("authenticate sheets: %w", err)
	}
	calCred, err := auth.Authenticate(ctx, map[string][]string{
		cfg.Google.CalendarToken: {gcal.CalendarScope},
	})
	if err != nil {
		return fmt.Errorf("authenticate calendar: %w", err)
	}
	if authOnly {
		logger.Info("tokens stored",
			zap.String("sheet_token", cfg.Google.SheetToken),
			zap.String("calendar_token", cfg.Google.CalendarToken),
		)
		return nil
	}

	// Token refreshes outlive individual requests.
	base := context.Background()

	sheetClient, err := spreadsheet.New(ctx, cfg.Sheets.SpreadsheetID, logger,
		option.WithHTTPClient(sheetCred.Client(base)))
	if err != nil {
		return err
	}
	calClient, err := calendar.New(ctx, cfg.Calendar.CalendarID, logger,
		option.WithHTTPClient(calCred.Client(base)))
	if err != nil {
		return err
	}

	invites, closeLedger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	svc := alert.New(sheetClient, calClient, invites, alert.Options{
		LogSheet:    cfg.Sheets.LogSheet,
		ClientSheet: cfg.Sheets.ClientSheet,
		DedupWindow: cfg.Invites.DedupWindow,
	}, logger)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handlers.NewRouter(handlers.New(svc, logger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("emergency-button starting",
		zap.String("addr", addr),
		zap.String("env", cfg.Server.Env),
		zap.String("webhook", "/emergency-button/inbound-emergency"),
	)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openLedger selects the Firestore ledger when a Firebase project is
// configured and falls back to process memory otherwise.
func openLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ledger.Ledger, func(), error) {
	if cfg.Firebase.ProjectID == "" {
		logger.Info("using in-memory invite ledger")
		return ledger.NewMemory(), func() {}, nil
	}
	fs, err := ledger.OpenFirestore(ctx, ledger.FirestoreConfig{
		ProjectID:       cfg.Firebase.ProjectID,
		Database:        cfg.Firebase.FirestoreDatabase,
		Collection:      cfg.Firebase.InvitesCollection,
		CredentialsPath: cfg.Firebase.CredentialsPath,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using firestore invite ledger",
		zap.String("project", cfg.Firebase.ProjectID),
		zap.String("collection", cfg.Firebase.InvitesCollection),
	)
	return fs, func() {
		if err := fs.Close(); err != nil {
			logger.Warn("close firestore", zap.Error(err))
		}
	}, nil
}
