package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/sawpanic/marketpulse/internal/interfaces/http"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only decision API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			server := httpapi.NewServer(httpapi.ServerConfig{
				Addr:         a.cfg.HTTP.Addr,
				ReadTimeout:  a.cfg.HTTP.GetTimeout(),
				WriteTimeout: a.cfg.HTTP.GetTimeout(),
				IdleTimeout:  60 * time.Second,
			}, a.store, a.registry)

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}
