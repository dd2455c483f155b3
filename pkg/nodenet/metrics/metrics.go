// Package metrics exports engine counters to Prometheus.
// The collector samples Stats at scrape time; nothing is recorded on the engine's hot path.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rflandau/nodenet/pkg/nodenet"
	"github.com/rflandau/nodenet/pkg/nodenet/engine"
)

const namespace = "nodenet"

// A Source is anything that can report engine counters.
type Source interface {
	LocalAddress() nodenet.Addr
	Stats() engine.Stats
}

type counter struct {
	desc *prometheus.Desc
	get  func(engine.Stats) uint64
}

// A Collector is a prometheus.Collector over a single engine.
type Collector struct {
	src      Source
	counters []counter
	inUse    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for src.
// Every series carries a "node" label holding the local address in hex.
func NewCollector(src Source) *Collector {
	labels := []string{"node"}
	c := &Collector{
		src:   src,
		inUse: prometheus.NewDesc(prometheus.BuildFQName(namespace, "pool", "slots_in_use"), "Packet slots currently occupied.", labels, nil),
	}
	def := func(name, help string, get func(engine.Stats) uint64) {
		c.counters = append(c.counters, counter{
			desc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name+"_total"), help, labels, nil),
			get:  get,
		})
	}
	def("submitted", "Requests accepted for transmission.", func(s engine.Stats) uint64 { return s.Submitted })
	def("dropped_full", "Requests dropped because the pool was full.", func(s engine.Stats) uint64 { return s.DroppedFull })
	def("sent", "Frames written to the bus.", func(s engine.Stats) uint64 { return s.Sent })
	def("retransmitted", "Request transmissions after the first.", func(s engine.Stats) uint64 { return s.Retransmitted })
	def("expired", "Requests abandoned after exhausting their retries.", func(s engine.Stats) uint64 { return s.Expired })
	def("acked", "Requests freed by an acknowledgment.", func(s engine.Stats) uint64 { return s.Acked })
	def("received", "Well-formed lines read off the bus.", func(s engine.Stats) uint64 { return s.Received })
	def("rejected", "Malformed lines read off the bus.", func(s engine.Stats) uint64 { return s.Rejected })
	def("foreign", "Well-formed lines addressed to other nodes.", func(s engine.Stats) uint64 { return s.NotForUs })
	def("replied", "Acknowledgments sent in reply to requests.", func(s engine.Stats) uint64 { return s.Replied })
	def("replayed", "Acknowledgments resent for duplicate requests.", func(s engine.Stats) uint64 { return s.Replayed })
	def("duplicates", "Inbound requests dropped as duplicates.", func(s engine.Stats) uint64 { return s.Duplicates })
	def("write_errors", "Failed writes to the bus.", func(s engine.Stats) uint64 { return s.WriteErrors })
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, ctr := range c.counters {
		ch <- ctr.desc
	}
	ch <- c.inUse
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	node := fmt.Sprintf("%02X", c.src.LocalAddress())
	for _, ctr := range c.counters {
		ch <- prometheus.MustNewConstMetric(ctr.desc, prometheus.CounterValue, float64(ctr.get(st)), node)
	}
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(st.InUse), node)
}
