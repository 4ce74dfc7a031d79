package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hookwatch/internal/payload"

	"github.com/go-logr/logr"
)

type Outcome int

const (
	OutcomeStored Outcome = iota
	OutcomeDuplicate
	OutcomeSkipped
	OutcomeBadRequest
	OutcomeUnauthorized
	OutcomeInternal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

var (
	ErrMissingEventType = errors.New("missing event type")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPayload   = errors.New("invalid JSON payload")
)

type Delivery struct {
	EventType  string
	Signature  string
	DeliveryID string
	Body       []byte
}

// Result carries the outcome of one delivery. RequestID is set once an event
// has been normalized; Err explains every outcome except Stored and Duplicate.
type Result struct {
	Outcome   Outcome
	RequestID string
	Err       error
}

type Coordinator struct {
	Adapter  WebhookAdapter
	Sink     Sink
	Recorder Recorder
	Logger   logr.Logger
}

func NewCoordinator(adapter WebhookAdapter, sink Sink, logger logr.Logger) *Coordinator {
	return &Coordinator{
		Adapter: adapter,
		Sink:    sink,
		Logger:  logger,
	}
}

// Ingest runs one delivery through verification, normalization and storage.
// It holds no locks; concurrent duplicates are resolved by the Sink.
func (c *Coordinator) Ingest(ctx context.Context, d Delivery) (res Result) {
	eventType := strings.TrimSpace(d.EventType)
	log := c.Logger.WithValues("event_type", eventType, "delivery_id", d.DeliveryID)

	defer func() {
		if r := recover(); r != nil {
			res = Result{Outcome: OutcomeInternal, RequestID: res.RequestID, Err: fmt.Errorf("ingest panic: %v", r)}
			c.logError(log, res.Err, "webhook processing panicked")
		}
		if c.Recorder != nil {
			c.Recorder.ObserveDelivery(eventType, res.Outcome.String())
		}
	}()

	if eventType == "" {
		return Result{Outcome: OutcomeBadRequest, Err: ErrMissingEventType}
	}
	if c.Adapter == nil || c.Sink == nil {
		return Result{Outcome: OutcomeInternal, Err: errors.New("coordinator is not configured")}
	}
	if !c.Adapter.Authorize(d.Body, d.Signature) {
		log.V(1).Info("rejected delivery with invalid signature")
		return Result{Outcome: OutcomeUnauthorized, Err: ErrInvalidSignature}
	}

	doc, err := payload.Decode(d.Body)
	if err != nil {
		return Result{Outcome: OutcomeBadRequest, Err: fmt.Errorf("%w: %v", ErrInvalidPayload, err)}
	}
	if doc.Empty() {
		return Result{Outcome: OutcomeBadRequest, Err: fmt.Errorf("%w: empty object", ErrInvalidPayload)}
	}

	ev, err := c.Adapter.Normalize(eventType, doc)
	if err != nil || ev == nil {
		if err == nil {
			err = errors.New("nothing to record")
		}
		log.V(1).Info("delivery skipped", "reason", err.Error())
		return Result{Outcome: OutcomeSkipped, Err: err}
	}

	res.RequestID = ev.RequestID
	inserted, err := c.Sink.Save(ctx, *ev)
	if err != nil {
		c.logError(log, err, "failed to store event", "request_id", ev.RequestID)
		return Result{Outcome: OutcomeInternal, RequestID: ev.RequestID, Err: err}
	}
	if !inserted {
		log.Info("duplicate event ignored", "request_id", ev.RequestID)
		return Result{Outcome: OutcomeDuplicate, RequestID: ev.RequestID}
	}
	log.Info("event stored", "request_id", ev.RequestID, "action", string(ev.Action))
	return Result{Outcome: OutcomeStored, RequestID: ev.RequestID}
}

func (c *Coordinator) logError(log logr.Logger, err error, msg string, kv ...interface{}) {
	if log.GetSink() == nil {
		return
	}
	log.Error(err, msg, kv...)
}
