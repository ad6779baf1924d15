// Package instrument exports the device's measurement points as Prometheus
// metrics.
package instrument

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event is a measurement point of the ticket and circuit life cycle.
type Event string

const (
	TicketReceived    Event = "ticket_received"
	TicketChecked     Event = "ticket_checked"
	TicketDecrypted   Event = "ticket_decrypted"
	CircuitInit       Event = "circuit_init"
	JoinSent          Event = "join_sent"
	Rendezvous1Sent   Event = "rendezvous1_sent"
	BeginSent         Event = "begin_sent"
	ConnectedReceived Event = "connected_received"
	RequestSent       Event = "request_sent"
	ResponseSent      Event = "response_sent"
	CellCrypted       Event = "cell_crypted"
)

var (
	events = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tor4iot_events_total",
			Help: "Number of measurement events by kind",
		},
		[]string{"event"},
	)
	cellsIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tor4iot_cells_received_total",
			Help: "Number of cells received by command",
		},
		[]string{"command"},
	)
	cellsOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tor4iot_cells_sent_total",
			Help: "Number of cells sent by command",
		},
		[]string{"command"},
	)
	ticketsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tor4iot_tickets_rejected_total",
			Help: "Number of rejected tickets by reason",
		},
		[]string{"reason"},
	)
	digestMismatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tor4iot_relay_digest_mismatches_total",
			Help: "Number of inbound relay cells whose digest did not verify",
		},
	)
	sequenceResyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tor4iot_sequence_resyncs_total",
			Help: "Number of inbound sequence gaps or duplicates",
		},
	)
	ticketLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tor4iot_ticket_processing_seconds",
			Help:    "Time from ticket arrival to an established circuit",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		events, cellsIn, cellsOut, ticketsRejected,
		digestMismatches, sequenceResyncs, ticketLatency,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Serve exposes the metrics of g on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func Record(e Event) { events.WithLabelValues(string(e)).Inc() }

func CellIn(cmd string)  { cellsIn.WithLabelValues(cmd).Inc() }
func CellOut(cmd string) { cellsOut.WithLabelValues(cmd).Inc() }

func TicketRejected(reason string) { ticketsRejected.WithLabelValues(reason).Inc() }

func DigestMismatch() { digestMismatches.Inc() }

func SequenceResync() { sequenceResyncs.Inc() }

// ObserveTicket records how long a ticket took to turn into a circuit.
func ObserveTicket(d time.Duration) { ticketLatency.Observe(d.Seconds()) }
