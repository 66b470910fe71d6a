// Package metrics exports bridge activity as Prometheus counters.
package metrics

import (
	"errors"
	"fmt"
	"sync"

	cbridge "github.com/next-trace/scg-event-bridge/contract/bridge"
	berr "github.com/next-trace/scg-event-bridge/contract/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultEncoding = "encoding_error"
	ResultDecoding = "decoding_error"
	ResultHandler  = "handler_error"
	ResultClosed   = "closed"
	ResultError    = "error"
)

// undecodedChannel labels deliveries whose envelope could not be decoded.
const undecodedChannel = "_undecoded"

// Observer implements bridge.Observer on top of Prometheus counters.
type Observer struct {
	mu sync.Mutex

	emitted    *prometheus.CounterVec
	delivered  *prometheus.CounterVec
	dispatched *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

var _ cbridge.Observer = (*Observer)(nil)

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventbridge",
			Subsystem: "bridge",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates an observer. A nil registerer falls back to prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Observer {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Observer{
		registerer: registerer,
		emitted:    newCounterVec("emitted_total", "Outbound events handed to the transport", []string{"channel", "result"}),
		delivered:  newCounterVec("delivered_total", "Inbound envelopes delivered to the bridge", []string{"channel", "result"}),
		dispatched: newCounterVec("handler_invocations_total", "Handler invocations performed by inbound deliveries", []string{"channel"}),
	}
}

// Register registers the collectors. Safe to call multiple times. When another observer
// already registered the same collectors, this one adopts them so that every bridge
// sharing a registerer reports into the same series. Call it before the observer is used.
func (o *Observer) Register() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.registered {
		return nil
	}

	for _, vec := range []**prometheus.CounterVec{&o.emitted, &o.delivered, &o.dispatched} {
		err := o.registerer.Register(*vec)
		if err == nil {
			continue
		}

		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}

		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("metrics register: existing collector is %T", are.ExistingCollector)
		}

		*vec = existing
	}

	o.registered = true

	return nil
}

func (o *Observer) Emitted(channel string, err error) {
	o.emitted.WithLabelValues(channel, Result(err)).Inc()
}

func (o *Observer) Delivered(channel string, handlers int, err error) {
	if channel == "" && errors.Is(err, berr.ErrDecoding) {
		channel = undecodedChannel
	}

	o.delivered.WithLabelValues(channel, Result(err)).Inc()

	if handlers > 0 {
		o.dispatched.WithLabelValues(channel).Add(float64(handlers))
	}
}

// Result maps a bridge error to its result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, berr.ErrEncoding):
		return ResultEncoding
	case errors.Is(err, berr.ErrDecoding):
		return ResultDecoding
	case errors.Is(err, berr.ErrHandlerFailed), errors.Is(err, berr.ErrHandlerPanicked):
		return ResultHandler
	case errors.Is(err, berr.ErrBridgeClosed):
		return ResultClosed
	default:
		return ResultError
	}
}
