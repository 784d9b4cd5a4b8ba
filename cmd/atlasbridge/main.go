// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// atlasbridge is a local daemon that owns Jira and Bitbucket credentials:
// it runs the login flows, keeps tokens fresh and exposes a localhost
// management API for clients that need authenticated access.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/api"
	"github.com/atlasbridge/atlasbridge/internal/api/handlers/management"
	"github.com/atlasbridge/atlasbridge/internal/clients"
	"github.com/atlasbridge/atlasbridge/internal/config"
	"github.com/atlasbridge/atlasbridge/internal/credstore"
	"github.com/atlasbridge/atlasbridge/internal/logging"
	"github.com/atlasbridge/atlasbridge/internal/login"
	"github.com/atlasbridge/atlasbridge/internal/oauth"
	"github.com/atlasbridge/atlasbridge/internal/sites"
	"github.com/atlasbridge/atlasbridge/internal/util"
	"github.com/atlasbridge/atlasbridge/internal/watcher"
)

const keyringService = "atlasbridge"

func main() {
	_ = godotenv.Load()

	var (
		configPath  = flag.String("config", "~/.atlasbridge/config.yaml", "path to the configuration file")
		debug       = flag.Bool("debug", false, "enable debug logging")
		useMemStore = flag.Bool("ephemeral", false, "keep credentials in memory instead of the system keychain")
	)
	flag.Parse()

	logging.SetupBaseLogger()

	resolvedConfigPath, err := util.ExpandPath(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve configuration path")
	}
	cfg, err := config.LoadConfig(resolvedConfigPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if *debug {
		cfg.Debug = true
	}
	logging.SetDebug(cfg.Debug)

	authDir, err := util.ExpandPath(cfg.AuthDir)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve auth directory")
	}
	if err := os.MkdirAll(authDir, 0700); err != nil {
		log.WithError(err).Fatal("failed to create auth directory")
	}
	if cfg.LoggingToFile {
		if err := logging.ConfigureLogOutput(true, filepath.Join(authDir, "logs")); err != nil {
			log.WithError(err).Warn("failed to configure file logging")
		}
	}

	if err := run(cfg, authDir, *useMemStore); err != nil {
		log.WithError(err).Fatal("atlasbridge exited")
	}
}

func run(cfg *config.Config, authDir string, useMemStore bool) error {
	var storage credstore.SecretStorage
	if useMemStore {
		storage = credstore.NewMemoryStorage()
	} else {
		storage = credstore.NewKeyringStorage(keyringService)
	}

	dancer := oauth.NewDancer(cfg)
	defer dancer.Close()

	credentials := credstore.NewCredentialManager(storage, dancer)

	registry, err := sites.NewManager(authDir)
	if err != nil {
		return fmt.Errorf("failed to open site registry: %w", err)
	}

	loginManager := login.NewManager(registry, credentials, dancer, clients.NewJiraClient(), clients.NewBitbucketClient())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hardcodedWatcher := watcher.NewHardcodedWatcher(
		cfg.HardcodedSites,
		loginManager,
		registry,
		credentials,
		time.Duration(cfg.RefreshPollSeconds)*time.Second,
	)
	go hardcodedWatcher.Run(ctx)

	handler := management.NewHandler(loginManager, registry, credentials, nil)
	server := api.NewServer(cfg, handler)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("management API shutdown was not clean")
	}
	return nil
}
