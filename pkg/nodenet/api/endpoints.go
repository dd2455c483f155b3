package api

/*
This file defines the request and response shapes of the control plane.
The client package uses the same types, so keep the two in step.
*/

import "github.com/rflandau/nodenet/pkg/nodenet/engine"

type Endpoint = string

const (
	EP_STATUS  Endpoint = "/status"
	EP_SLOTS   Endpoint = "/slots"
	EP_SEND    Endpoint = "/send"
	EP_STATS   Endpoint = "/stats"
	EP_METRICS Endpoint = "/metrics"
)

// CONTENT_TYPE is the content type of every huma-served response.
const CONTENT_TYPE string = "application/json"

// Status codes returned on success.
const (
	EXPECTED_STATUS_STATUS = 200
	EXPECTED_STATUS_SLOTS  = 200
	EXPECTED_STATUS_SEND   = 202
	EXPECTED_STATUS_STATS  = 200
)

//#region STATUS

// Status describes the node behind the API.
type Status struct {
	Address    uint8 `json:"address" example:"1" doc:"bus address of the node"`
	Capacity   int   `json:"capacity" example:"4" doc:"number of packet slots"`
	InUse      int   `json:"in-use" example:"1" doc:"number of occupied packet slots"`
	MaxPayload int   `json:"max-payload" example:"30" doc:"largest payload a packet can carry"`
}

// Response for GET /status.
type StatusResp struct {
	Body Status
}

//#endregion STATUS

//#region SLOTS

// Slot is a point-in-time view of one occupied packet slot.
type Slot struct {
	Handle  int    `json:"handle" example:"0" doc:"index of the slot in the pool"`
	To      uint8  `json:"to" example:"2" doc:"destination address"`
	From    uint8  `json:"from" example:"1" doc:"source address"`
	Kind    string `json:"kind" enum:"REQUEST,ACK" doc:"packet kind"`
	Seq     uint8  `json:"seq" example:"117" doc:"sequence number"`
	Retries uint8  `json:"retries" example:"1" doc:"transmissions attempted so far"`
	Payload string `json:"payload" example:"ping" doc:"raw payload"`
}

// Response for GET /slots.
type SlotsResp struct {
	Body struct {
		Slots []Slot `json:"slots" doc:"every occupied slot, lowest index first"`
	}
}

//#endregion SLOTS

//#region SEND

// Request for POST /send.
// Queues a request on the bus.
type SendReq struct {
	Body struct {
		To      uint8  `json:"to" required:"true" minimum:"0" maximum:"255" example:"2" doc:"destination address"`
		Payload string `json:"payload" example:"ping" doc:"payload to carry; truncated to the node's max payload"`
	}
}

// Response for POST /send.
type SendResp struct {
	Body struct {
		Queued bool `json:"queued" doc:"the request was placed in the pool"`
	}
}

//#endregion SEND

//#region STATS

// Response for GET /stats.
type StatsResp struct {
	Body engine.Stats
}

//#endregion STATS
