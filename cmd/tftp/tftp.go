package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nettlesoup/tftpd/internal/client"
	"github.com/nettlesoup/tftpd/internal/protocol"
	"github.com/nettlesoup/tftpd/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
}

func main() {
	var (
		host    string
		port    uint16
		mode    string
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "tftp",
		Short: "TFTP client for the NettleSoup TFTP server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.Logger = log.Logger.Level(zerolog.DebugLevel)
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&host, "host", "H", "localhost", "Server host")
	cmd.PersistentFlags().Uint16VarP(&port, "port", "p", 69, "Server UDP port")
	cmd.PersistentFlags().StringVarP(&mode, "mode", "m", "octet", "Transfer mode (netascii, octet, mail)")
	cmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Per-datagram timeout")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enables verbose output")

	parseOpts := func() (client.TransferOpts, error) {
		m, ok := protocol.ModeFromString(mode)
		if !ok {
			return client.TransferOpts{}, fmt.Errorf("invalid transfer mode: %s", mode)
		}
		return client.TransferOpts{Mode: utils.Ptr(m)}, nil
	}

	var output string
	getCmd := &cobra.Command{
		Use:   "get FILE",
		Short: "Download a file from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOpts()
			if err != nil {
				return err
			}

			local := output
			if local == "" {
				local = filepath.Base(args[0])
			}

			f, err := os.Create(local)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", local, err)
			}
			defer f.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cli := client.NewClientUDP(host, port, utils.Ptr(timeout))
			if _, err := cli.Get(ctx, args[0], f, opts); err != nil {
				return err
			}
			return nil
		},
	}
	getCmd.Flags().StringVarP(&output, "output", "o", "", "Local path to write to (defaults to the remote name)")

	var remote string
	putCmd := &cobra.Command{
		Use:   "put FILE",
		Short: "Upload a file to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOpts()
			if err != nil {
				return err
			}

			name := remote
			if name == "" {
				name = filepath.Base(args[0])
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cli := client.NewClientUDP(host, port, utils.Ptr(timeout))
			if _, err := cli.Put(ctx, name, f, opts); err != nil {
				return err
			}
			return nil
		},
	}
	putCmd.Flags().StringVarP(&remote, "remote", "r", "", "Remote name to store as (defaults to the local name)")

	cmd.AddCommand(getCmd)
	cmd.AddCommand(putCmd)

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Client error")
		os.Exit(1)
	}
}
