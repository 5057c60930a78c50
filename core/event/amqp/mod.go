// Package amqp implements an observer that exports the events of the ledger to
// a RabbitMQ topic exchange. Every event is published as a JSON message with
// the routing key "<prefix>.<event type>", for instance "custody.BidPlaced".
//
// The observer is notified by the gateway after the lock is released. The
// messages are queued and published by a single worker so that a slow broker
// never delays an operation: when the queue is full, the event is dropped and
// counted.
package amqp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
	"golang.org/x/xerrors"
)

const (
	// DefaultExchange is the name of the exchange the events are published to.
	DefaultExchange = "custody_events"

	// DefaultPrefix is the prefix of the routing keys.
	DefaultPrefix = "custody"

	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
)

var promDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "custody_amqp_events_dropped_total",
	Help: "number of events dropped by the AMQP exporter",
})

var promPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "custody_amqp_events_published_total",
	Help: "number of events published to the broker by outcome",
}, []string{"outcome"})

func init() {
	custody.PromCollectors = append(custody.PromCollectors, promDropped, promPublished)
}

// Channel is the subset of an AMQP channel used by the exporter.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool,
		args amqp.Table) error

	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool,
		msg amqp.Publishing) error

	Close() error
}

// Option is the type of option to create an exporter.
type Option func(*Exporter)

// WithPrefix sets the prefix of the routing keys.
func WithPrefix(prefix string) Option {
	return func(e *Exporter) {
		e.prefix = prefix
	}
}

// WithQueueSize sets the number of events waiting to be published before new
// ones are dropped.
func WithQueueSize(size int) Option {
	return func(e *Exporter) {
		e.queue = make(chan core.Event, size)
	}
}

// WithTimeout sets the maximum duration of a publication.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Exporter) {
		e.timeout = timeout
	}
}

// Exporter is an observer publishing the events to an exchange.
//
// - implements core.Observer
type Exporter struct {
	sync.Mutex

	ch       Channel
	closer   func() error
	exchange string
	prefix   string
	timeout  time.Duration
	queue    chan core.Event
	done     chan struct{}
	closed   bool
}

// Dial connects to the broker at the URL and returns an exporter publishing to
// the exchange, which is declared if necessary.
func Dial(url, exchange string, opts ...Option) (*Exporter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, xerrors.Errorf("failed to dial broker: %v", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Errorf("failed to open channel: %v", err)
	}

	exp, err := NewExporter(ch, exchange, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}

	exp.closer = conn.Close

	return exp, nil
}

// NewExporter declares the exchange on the channel and returns a running
// exporter.
func NewExporter(ch Channel, exchange string, opts ...Option) (*Exporter, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to declare exchange '%s': %v", exchange, err)
	}

	exp := &Exporter{
		ch:       ch,
		closer:   func() error { return nil },
		exchange: exchange,
		prefix:   DefaultPrefix,
		timeout:  defaultPublishTimeout,
		queue:    make(chan core.Event, defaultQueueSize),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(exp)
	}

	go exp.run()

	return exp, nil
}

// NotifyCallback implements core.Observer. It queues the event for publication
// and never blocks.
func (e *Exporter) NotifyCallback(evt core.Event) {
	e.Lock()
	defer e.Unlock()

	if e.closed {
		return
	}

	select {
	case e.queue <- evt:
	default:
		promDropped.Inc()

		custody.Logger.Warn().Str("event", string(evt.Type)).Msg("event queue full, event dropped")
	}
}

// Close publishes the queued events, then closes the channel and the
// connection.
func (e *Exporter) Close() error {
	e.Lock()
	if e.closed {
		e.Unlock()
		return nil
	}

	e.closed = true
	close(e.queue)
	e.Unlock()

	<-e.done

	err := e.ch.Close()
	if err != nil {
		return xerrors.Errorf("failed to close channel: %v", err)
	}

	err = e.closer()
	if err != nil {
		return xerrors.Errorf("failed to close connection: %v", err)
	}

	return nil
}

func (e *Exporter) run() {
	defer close(e.done)

	for evt := range e.queue {
		err := e.publish(evt)
		if err != nil {
			promPublished.WithLabelValues("failed").Inc()

			custody.Logger.Err(err).Str("event", string(evt.Type)).Msg("failed to export event")

			continue
		}

		promPublished.WithLabelValues("sent").Inc()
	}
}

func (e *Exporter) publish(evt core.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return xerrors.Errorf("failed to encode event: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(evt.Type),
		Timestamp:    time.Now(),
		Body:         body,
	}

	err = e.ch.PublishWithContext(ctx, e.exchange, RoutingKey(e.prefix, evt.Type), false, false, msg)
	if err != nil {
		return xerrors.Errorf("failed to publish: %v", err)
	}

	return nil
}

// RoutingKey returns the routing key of the event type.
func RoutingKey(prefix string, typ core.EventType) string {
	if prefix == "" {
		return string(typ)
	}

	return prefix + "." + string(typ)
}
