// Copyright 2025 The vcrproxy Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Command vcrproxy runs the HTTP record/replay proxy: a reverse proxy that
// serves cached responses from local cassettes in replay mode, forwards
// and records in record mode, and does both depending on cache state in
// spy mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nurikk/vcrproxy/internal/admin"
	"github.com/nurikk/vcrproxy/internal/cassette"
	"github.com/nurikk/vcrproxy/internal/config"
	"github.com/nurikk/vcrproxy/internal/handler"
	"github.com/nurikk/vcrproxy/internal/logging"
	"github.com/nurikk/vcrproxy/internal/mode"
	"github.com/nurikk/vcrproxy/internal/vcrerr"
)

// exitCode mirrors spec.md §6: 0 normal, 1 configuration error, 2 port
// bind failure.
type exitCode int

const (
	exitOK          exitCode = 0
	exitConfigError exitCode = 1
	exitBindError   exitCode = 2
)

func mainImpl() (exitCode, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := flag.String("config", "./vcr-proxy.yaml", "Path to the proxy's YAML configuration file")
	modeFlag := flag.String("mode", "", "Override the configured mode (record, replay, spy)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return exitConfigError, err
	}
	if *modeFlag != "" {
		cfg.Mode = *modeFlag
		if err := cfg.Validate(); err != nil {
			return exitConfigError, err
		}
	}

	logger := logging.NewLogger(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	engine, err := mode.New(mode.Value(cfg.Mode))
	if err != nil {
		return exitConfigError, err
	}

	h, err := handler.New(cfg, engine, logger)
	if err != nil {
		return exitConfigError, err
	}
	store := cassette.NewStore(cfg.Cassettes.Dir)
	adminSrv := admin.New(engine, store, logger)

	proxyServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: h}
	adminServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.AdminPort), Handler: adminSrv}

	proxyLn, err := net.Listen("tcp", proxyServer.Addr)
	if err != nil {
		return exitBindError, err
	}
	adminLn, err := net.Listen("tcp", adminServer.Addr)
	if err != nil {
		return exitBindError, err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info("proxy listening", "addr", proxyServer.Addr, "mode", cfg.Mode)
		if err := proxyServer.Serve(proxyLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("admin listening", "addr", adminServer.Addr)
		if err := adminServer.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		_ = proxyServer.Shutdown(context.Background())
		_ = adminServer.Shutdown(context.Background())
		return nil
	})

	if err := g.Wait(); err != nil {
		return exitConfigError, err
	}
	return exitOK, nil
}

func main() {
	code, err := mainImpl()
	if err != nil {
		kind, _ := vcrerr.KindOf(err)
		fmt.Fprintf(os.Stderr, "vcrproxy: %s (%s)\n", err, kind)
	}
	os.Exit(int(code))
}
