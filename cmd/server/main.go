package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-integration-hub/internal/config"
	"github.com/jrsteele09/go-integration-hub/internal/logging"
	"github.com/jrsteele09/go-integration-hub/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "hub",
		Short:        "Integration hub: per-tenant OAuth sessions and governed API calls",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newCompaniesCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load tenant sessions and serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := run(); err != nil {
				return fmt.Errorf("error running server: %w", err)
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}
}

func newCompaniesCmd() *cobra.Command {
	var connectedOnly bool
	cmd := &cobra.Command{
		Use:   "companies",
		Short: "Load tenant sessions from the store and print them as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.New()
			if err != nil {
				return err
			}
			logging.Setup(c.GetLogLevel(), c.GetEnv() == "DEV")

			h, err := buildHub(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer h.close()

			companies := h.registry.AllCompanies()
			if connectedOnly {
				companies = h.registry.ConnectedCompanies()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(companies)
		},
	}
	cmd.Flags().BoolVar(&connectedOnly, "connected", false, "only list connected companies")
	return cmd
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	logging.Setup(c.GetLogLevel(), c.GetEnv() == "DEV")
	displayAppname(c.GetAppName())

	h, err := buildHub(context.Background(), c)
	if err != nil {
		return err
	}
	defer h.close()

	handler, err := server.New(c, server.Services{
		Governor:  h.gov,
		Registry:  h.registry,
		Connector: h.connector,
		Drive:     h.drive,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: c.GetPort(), Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
