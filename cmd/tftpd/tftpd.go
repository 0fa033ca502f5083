package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nettlesoup/tftpd/internal/config"
	"github.com/nettlesoup/tftpd/internal/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
}

func main() {
	var (
		configPath string
		listen     string
		port       uint16
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "tftpd ROOT",
		Short: "The NettleSoup TFTP server",
		Long:  "Serves files out of ROOT over TFTP (RFC 1350). Requests are confined to the ROOT tree.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			// Flags set on the command line override the config file
			cfg.Root = args[0]
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("verbose") {
				cfg.Verbose = verbose
			}

			if cfg.Verbose {
				log.Logger = log.Logger.Level(zerolog.DebugLevel)
			}

			info, err := os.Stat(cfg.Root)
			if err != nil {
				return fmt.Errorf("failed to stat root: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("root %s is not a directory", cfg.Root)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			srv := server.NewServerUDP(server.ServerOpts{
				Root:                   cfg.Root,
				Host:                   cfg.Listen,
				Port:                   cfg.Port,
				Timeout:                time.Duration(cfg.TimeoutSeconds) * time.Second,
				MaxConcurrentTransfers: cfg.MaxTransfers,
			})

			if err := srv.Run(ctx); err != nil {
				return err
			}
			log.Info().Msg("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "The local address to listen on")
	cmd.Flags().Uint16VarP(&port, "port", "p", 69, "The local UDP port to listen on")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enables verbose output")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
}
