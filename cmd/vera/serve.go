package main

import (
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only HTTP API without running scheduled jobs",
	Long: `Serves dashboards, reports and saved snapshots over HTTP:

  GET    /api/assets/{symbol}/dashboard?as_of=&profile=&save=
  GET    /api/assets/{symbol}/report?format=md|html|pdf
  GET    /api/assets/{symbol}/history?limit=
  GET    /api/snapshots
  GET    /api/snapshots/{id}
  DELETE /api/snapshots/{id}
  GET    /api/status, /healthz, /metrics`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort > 0 {
			config.Server.Port = servePort
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		srv := startServer(a, nil)

		<-cmd.Context().Done()
		logger.Info().Msg("Shutdown signal received")
		stopServer(srv)
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}
