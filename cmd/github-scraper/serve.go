package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/osslab-pku/github-scraper/internal/api"
)

var (
	port      int
	authToken string
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scrapers as a JSON API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port")
	cmd.Flags().StringVar(&authToken, "auth-token", "", "token required in the Authorization header")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup()
	if err != nil {
		return err
	}
	if port > 0 {
		e.cfg.Server.Port = port
	}
	if authToken != "" {
		e.cfg.Server.AuthToken = authToken
	}

	s, err := newScraper(e)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signalContext()
	defer cancel()

	srv := api.NewServer(e.cfg, s.Service(), e.metrics, e.logger)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
