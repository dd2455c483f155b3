/*
Node daemon.
Attaches a nodenet engine to a serial bus, answers requests addressed to it and exposes a control plane over HTTP.

Companion subcommands (send, status, slots) drive a running daemon through its control plane.
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rflandau/nodenet/internal/config"
	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/api"
	"github.com/rflandau/nodenet/pkg/nodenet/client"
	"github.com/rflandau/nodenet/pkg/nodenet/engine"
	"github.com/rflandau/nodenet/pkg/nodenet/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	apiURL  string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "node",
		Short:         "Run a nodenet node on a serial bus",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&apiURL, "api", "http://127.0.0.1:8080", "control plane of a running node")

	root.AddCommand(portsCmd(), sendCmd(), statusCmd(), slotsCmd(), simCmd())
	return root
}

// run is the daemon itself.
func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	l := zerolog.New(zerolog.ConsoleWriter{
		Out:         os.Stdout,
		FieldsOrder: []string{"node"},
		TimeFormat:  "15:04:05",
	}).With().
		Uint8("node", cfg.Address).
		Timestamp().
		Caller().
		Logger().Level(cfg.LogLevel)

	port, err := transport.Open(cfg.Port, cfg.Baud, cfg.Quiet, &l)
	if err != nil {
		return err
	}
	defer port.Close()

	eng, err := engine.New(cfg.Address, port, append(cfg.EngineOptions(), engine.WithLogger(&l))...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Listen != "" {
		ap, err := netip.ParseAddrPort(cfg.Listen)
		if err != nil {
			return fmt.Errorf("parse listen address: %w", err)
		}
		apiLog := l.With().Str("sublogger", "api").Logger()
		srv, err := api.New(eng, ap, api.WithLogger(&apiLog))
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Stop(sctx)
		}()
	}

	var h engine.Handler
	if cfg.Echo {
		h = func(from nodenet.Addr, req []byte) ([]byte, bool) {
			l.Info().Uint8("from", from).Bytes("payload", req).Msg("echoing request")
			return req, true
		}
	}

	fmt.Println("Send a SIGINT to kill the program")
	err = eng.Serve(ctx, port, h)
	l.Info().Func(eng.Stats().Zerolog).Msg("final counters")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports present on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := transport.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <address> <payload>",
		Short: "Queue a request on a running node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("parse address: %w", err)
			}
			c := client.New(apiURL)
			defer c.Close()
			return c.Send(cmd.Context(), nodenet.Addr(to), args[1])
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Describe a running node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(apiURL)
			defer c.Close()
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				api.Status
				Stats engine.Stats `json:"stats"`
			}{st, stats})
		},
	}
}

func slotsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "slots",
		Short: "List the occupied packet slots of a running node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(apiURL)
			defer c.Close()
			slots, err := c.Slots(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, slots)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
