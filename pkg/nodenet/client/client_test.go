package client_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Pallinder/go-randomdata"
	. "github.com/rflandau/nodenet/internal/testsupport"
	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/api"
	"github.com/rflandau/nodenet/pkg/nodenet/client"
	"github.com/rflandau/nodenet/pkg/nodenet/engine"
	"github.com/rflandau/nodenet/pkg/nodenet/protocol"
	"github.com/rs/zerolog"
)

// helper function.
// Spins up an engine and its control plane on a random localhost port.
func serve(t *testing.T, local nodenet.Addr, opts ...engine.Option) (*engine.Engine, *client.Client) {
	t.Helper()
	e, err := engine.New(local, &strings.Builder{}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	nop := zerolog.Nop()
	srv, err := api.New(e, RandomLocalhostAddrPort(), api.WithLogger(&nop))
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Stop(context.Background()) })

	c := client.NewForAddrPort(srv.AddrPort())
	t.Cleanup(func() { c.Close() })
	return e, c
}

func TestStatus(t *testing.T) {
	e, c := serve(t, 0x2C, engine.WithPoolCapacity(8), engine.WithMaxPayload(16))
	e.Submit(0x01, []byte("x"))

	st, err := c.Status(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	want := api.Status{Address: 0x2C, Capacity: 8, InUse: 1, MaxPayload: 16}
	if st != want {
		t.Error("bad status", ExpectedActual(want, st))
	}

	//lint:ignore SA1012 testing nil context handling
	if _, err := c.Status(nil); !errors.Is(err, nodenet.ErrNilCtx) {
		t.Error("expected nil ctx", ExpectedActual(nodenet.ErrNilCtx, err))
	}
}

func TestSendAndSlots(t *testing.T) {
	e, c := serve(t, 0x01)
	payload := randomdata.SillyName()
	if len(payload) > e.MaxPayload() {
		payload = payload[:e.MaxPayload()]
	}

	if err := c.Send(t.Context(), 0x05, payload); err != nil {
		t.Fatal(err)
	}
	slots, err := c.Slots(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 {
		t.Fatal("bad slot count", ExpectedActual(1, len(slots)))
	}
	s := slots[0]
	if s.To != 0x05 || s.From != 0x01 || s.Kind != protocol.Request.String() || s.Payload != payload || s.Seq == 0 {
		t.Errorf("bad slot: %+v", s)
	}

	stats, err := c.Stats(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Submitted != 1 || stats.InUse != 1 {
		t.Errorf("bad stats: %+v", stats)
	}
}

// A full pool is reported as 503.
func TestSend_FullPool(t *testing.T) {
	_, c := serve(t, 0x01, engine.WithPoolCapacity(1))
	if err := c.Send(t.Context(), 0x02, "first"); err != nil {
		t.Fatal(err)
	}
	err := c.Send(t.Context(), 0x02, "second")
	var se *client.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected a status error, got %v", err)
	}
	if se.Code != http.StatusServiceUnavailable {
		t.Error("bad status code", ExpectedActual(http.StatusServiceUnavailable, se.Code))
	}
}

func TestUnreachable(t *testing.T) {
	c := client.NewForAddrPort(RandomLocalhostAddrPort())
	defer c.Close()
	if _, err := c.Status(t.Context()); err == nil {
		t.Fatal("expected an error from a node that is not listening")
	}
}
