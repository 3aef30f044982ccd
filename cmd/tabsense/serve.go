package main

import (
	"github.com/spf13/cobra"

	"github.com/cognicore/tabsense/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for the dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := a.engine(cmd)
			if err != nil {
				return err
			}
			defer engine.Close()
			return server.New(engine, a.logger.Named("server")).Serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().StringSlice("cors-origin", nil, "allowed CORS origin (repeatable)")
	return cmd
}
