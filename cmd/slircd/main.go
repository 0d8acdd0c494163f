// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command slircd is an IRC server that gateways each connected client onto
// the Slack Web API and RTM feed, so ordinary IRC clients can speak to
// Slack workspaces. Clients authenticate with a Slack token via PASS.
package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/slircd/pkg/gateway"
	"github.com/aiku/slircd/pkg/ircd"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var flags struct {
	configPath string
	host       string
	port       int
	tlsCert    string
	tlsKey     string
	insecure   bool
	debug      bool
}

var rootCmd = &cobra.Command{
	Use:     "slircd",
	Short:   "IRC gateway to Slack",
	Version: fmt.Sprintf("0.1.0 (%s, %s, built %s)", Tag, Commit, BuildTime),
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&flags.host, "host", "", "listen host")
	rootCmd.Flags().IntVar(&flags.port, "port", 0, "listen port")
	rootCmd.Flags().StringVar(&flags.tlsCert, "tls-cert", "", "TLS certificate file")
	rootCmd.Flags().StringVar(&flags.tlsKey, "tls-key", "", "TLS key file")
	rootCmd.Flags().BoolVar(&flags.insecure, "insecure", false, "listen without TLS")
	rootCmd.Flags().BoolVarP(&flags.debug, "debug", "d", false, "debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := gateway.LoadConfig(flags.configPath)
	if err != nil {
		return err
	}
	if flags.host != "" {
		cfg.Host = flags.host
	}
	if flags.port != 0 {
		cfg.Port = flags.port
	}
	if flags.tlsCert != "" {
		cfg.TLSCert = flags.tlsCert
	}
	if flags.tlsKey != "" {
		cfg.TLSKey = flags.tlsKey
	}
	if flags.insecure {
		cfg.Insecure = true
	}
	if flags.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(cfg.Debug)

	var tlsConf *tls.Config
	if !cfg.Insecure {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load tls keypair: %w", err)
		}
		tlsConf = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	gw := gateway.New(*cfg, log)
	srv := ircd.NewServer(gw, cfg.MaxLineLen, log)
	if err := srv.Listen(cfg.Addr(), tlsConf); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Info().Stringer("signal", sig).Msg("Shutting down")
	return srv.Close()
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	var out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}
	if debug {
		level = zerolog.TraceLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
