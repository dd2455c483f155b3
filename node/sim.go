package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/engine"
	"github.com/rflandau/nodenet/pkg/nodenet/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// simCmd runs a handful of nodes on an in-memory bus, has node 1 ping every other node and prints their counters.
func simCmd() *cobra.Command {
	var (
		nodes    int
		pings    int
		interval time.Duration
		verbose  bool
	)
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Exchange pings between simulated nodes on an in-memory bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if nodes < 2 || nodes > 0xFF {
				return fmt.Errorf("nodes must be 2 <= x <= 255 (given %d)", nodes)
			} else if interval <= 0 {
				return fmt.Errorf("interval must be > 0 (given %v)", interval)
			}
			lvl := zerolog.WarnLevel
			if verbose {
				lvl = zerolog.DebugLevel
			}

			bus := transport.NewBus(0)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var wg sync.WaitGroup
			engines := make([]*engine.Engine, nodes)
			taps := make([]*transport.Tap, nodes)
			for i := range engines {
				addr := nodenet.Addr(i + 1)
				tap := bus.Attach()
				taps[i] = tap
				l := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, FieldsOrder: []string{"node"}, TimeFormat: "15:04:05"}).
					With().Uint8("node", addr).Timestamp().Logger().Level(lvl)
				e, err := engine.New(addr, tap, engine.WithLogger(&l), engine.WithTickInterval(interval))
				if err != nil {
					return err
				}
				engines[i] = e
				wg.Add(1)
				go func() {
					defer wg.Done()
					e.Serve(ctx, tap, func(_ nodenet.Addr, req []byte) ([]byte, bool) { return req, true })
				}()
			}

			for p := range pings {
				for _, peer := range engines[1:] {
					payload := fmt.Sprintf("ping %d", p)
					for engines[0].Submit(peer.LocalAddress(), []byte(payload)) != nil {
						// pool is full; wait for acks to free a slot
						time.Sleep(interval / 4)
					}
				}
			}
			// wait out the retry budget of the last request
			time.Sleep(time.Duration(nodenet.DefaultMaxRetries+1) * interval)
			cancel()
			for _, tap := range taps {
				tap.Close()
			}
			wg.Wait()

			for _, e := range engines {
				st := e.Stats()
				fmt.Fprintf(cmd.OutOrStdout(), "node %02X: sent %d, acked %d, replied %d, expired %d, rejected %d\n",
					e.LocalAddress(), st.Sent, st.Acked, st.Replied, st.Expired, st.Rejected)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&nodes, "nodes", "n", 3, "number of nodes on the bus")
	cmd.Flags().IntVarP(&pings, "pings", "p", 5, "pings node 1 sends to each other node")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "retransmission interval")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	return cmd
}
