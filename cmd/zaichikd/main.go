package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"zaichik/env"
	"zaichik/internals/clock"
	"zaichik/internals/dashboard"
	"zaichik/internals/logging"
	"zaichik/internals/netio"
	"zaichik/internals/registry"
)

const version = "0.1.0"

func main() {
	app := &cli.App{
		Name:  "zaichikd",
		Usage: "the zaichik pub/sub broker daemon",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "starts the broker's TCP listener and optional debug dashboard",
				Action: runServe,
			},
			{
				Name:  "version",
				Usage: "prints the daemon version",
				Action: func(ctx *cli.Context) error {
					fmt.Println(version)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cliCtx *cli.Context) error {
	cfg, err := env.ReadBrokerConfig()
	if err != nil {
		return fmt.Errorf("zaichikd: reading config: %w", err)
	}

	log := logging.New(cfg.LogLevel)
	log.WithField("config", cfg.String()).Info("zaichikd: starting")

	reg := registry.New(cfg.FanoutBufferSize, clock.New())
	srv := netio.New(reg, log, time.Now)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Port))
	if err != nil {
		return fmt.Errorf("zaichikd: listen on port %s: %w", cfg.Port, err)
	}
	log.WithField("addr", ln.Addr().String()).Info("zaichikd: listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, ln)
	}()

	if cfg.DashboardAddr != "" {
		dash := dashboard.New(reg, log.WithField("component", "dashboard"))
		dashLn, err := net.Listen("tcp", cfg.DashboardAddr)
		if err != nil {
			return fmt.Errorf("zaichikd: dashboard listen on %s: %w", cfg.DashboardAddr, err)
		}
		go dash.Run(ctx, 2*time.Second)

		httpSrv := &http.Server{Handler: dash.Router()}
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
		go func() {
			log.WithField("addr", cfg.DashboardAddr).Info("zaichikd: dashboard listening")
			if err := httpSrv.Serve(dashLn); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("zaichikd: dashboard server exited")
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("zaichikd: shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("zaichikd: accept loop exited")
			return err
		}
	}
	return nil
}
