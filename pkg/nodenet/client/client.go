// Package client provides calls against a node's control plane.
// Each call is a single HTTP round trip made through resty.
package client

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/api"
	"github.com/rflandau/nodenet/pkg/nodenet/engine"
	"resty.dev/v3"
)

// A Client talks to the control plane of one node.
type Client struct {
	base string
	rc   *resty.Client
}

// New returns a client for the control plane at base ("http://<ip>:<port>").
func New(base string) *Client {
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		rc:   resty.New(),
	}
}

// NewForAddrPort returns a client for the control plane listening on ap.
func NewForAddrPort(ap netip.AddrPort) *Client {
	return New("http://" + ap.String())
}

// Close releases the client's resources.
func (c *Client) Close() error {
	return c.rc.Close()
}

// Status fetches the node's description.
func (c *Client) Status(ctx context.Context) (api.Status, error) {
	if ctx == nil {
		return api.Status{}, nodenet.ErrNilCtx
	}
	var sr api.StatusResp
	res, err := c.rc.R().
		SetContext(ctx).
		SetExpectResponseContentType(api.CONTENT_TYPE).
		SetResult(&sr.Body).
		Get(c.base + api.EP_STATUS)
	if err != nil {
		return api.Status{}, err
	} else if res.StatusCode() != api.EXPECTED_STATUS_STATUS {
		return api.Status{}, badStatus(res)
	}
	return sr.Body, nil
}

// Slots fetches every occupied packet slot of the node.
func (c *Client) Slots(ctx context.Context) ([]api.Slot, error) {
	if ctx == nil {
		return nil, nodenet.ErrNilCtx
	}
	var sr api.SlotsResp
	res, err := c.rc.R().
		SetContext(ctx).
		SetExpectResponseContentType(api.CONTENT_TYPE).
		SetResult(&sr.Body).
		Get(c.base + api.EP_SLOTS)
	if err != nil {
		return nil, err
	} else if res.StatusCode() != api.EXPECTED_STATUS_SLOTS {
		return nil, badStatus(res)
	}
	return sr.Body.Slots, nil
}

// Send asks the node to queue a request to the given address.
func (c *Client) Send(ctx context.Context, to nodenet.Addr, payload string) error {
	if ctx == nil {
		return nodenet.ErrNilCtx
	}
	var req api.SendReq
	req.Body.To = to
	req.Body.Payload = payload
	var sr api.SendResp
	res, err := c.rc.R().
		SetContext(ctx).
		SetBody(req.Body). // default request content type is JSON
		SetExpectResponseContentType(api.CONTENT_TYPE).
		SetResult(&sr.Body).
		Post(c.base + api.EP_SEND)
	if err != nil {
		return err
	} else if res.StatusCode() != api.EXPECTED_STATUS_SEND {
		return badStatus(res)
	} else if !sr.Body.Queued {
		return fmt.Errorf("node did not queue the request (response: %v)", res.String())
	}
	return nil
}

// Stats fetches the node's engine counters.
func (c *Client) Stats(ctx context.Context) (engine.Stats, error) {
	if ctx == nil {
		return engine.Stats{}, nodenet.ErrNilCtx
	}
	var sr api.StatsResp
	res, err := c.rc.R().
		SetContext(ctx).
		SetExpectResponseContentType(api.CONTENT_TYPE).
		SetResult(&sr.Body).
		Get(c.base + api.EP_STATS)
	if err != nil {
		return engine.Stats{}, err
	} else if res.StatusCode() != api.EXPECTED_STATUS_STATS {
		return engine.Stats{}, badStatus(res)
	}
	return sr.Body, nil
}

// A StatusError is returned when the node answers with an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad response code %d (response: %v)", e.Code, e.Body)
}

func badStatus(res *resty.Response) error {
	return &StatusError{Code: res.StatusCode(), Body: res.String()}
}
