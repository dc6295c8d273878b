package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ryanbastic/go-structdata/internal/circuitbreaker"
	"github.com/ryanbastic/go-structdata/internal/storage"
)

// Delivery outcomes reported to a DeliveryRecorder.
const (
	OutcomeDelivered   = "delivered"
	OutcomeRPCError    = "rpc_error"
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
)

// DeliveryRecorder counts notification outcomes.
type DeliveryRecorder interface {
	RecordDelivery(outcome string)
}

// Notifier delivers committed history entries to subscribed plugins as
// change.recorded calls. Each plugin endpoint has its own circuit breaker.
type Notifier struct {
	registry *PluginRegistry
	client   *RPCClient
	breakers *circuitbreaker.Set
	recorder DeliveryRecorder
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewNotifier creates a Notifier. recorder may be nil.
func NewNotifier(registry *PluginRegistry, client *RPCClient, breakers *circuitbreaker.Set, recorder DeliveryRecorder, logger *slog.Logger) *Notifier {
	return &Notifier{
		registry: registry,
		client:   client,
		breakers: breakers,
		recorder: recorder,
		logger:   logger,
	}
}

// ChangeRecorded fires one goroutine per subscribed plugin. Errors are
// logged, never returned: a mutation has already committed by the time its
// entry gets here.
func (n *Notifier) ChangeRecorded(ctx context.Context, entry storage.HistoryEntry) {
	plugins := n.registry.ForChange(entry.ChangeType)
	if len(plugins) == 0 {
		return
	}

	params := NewChangeRecordedParams(entry)
	ctx = context.WithoutCancel(ctx)
	for _, p := range plugins {
		n.wg.Add(1)
		go func(name, endpoint string) {
			defer n.wg.Done()
			n.deliver(ctx, name, endpoint, params)
		}(p.Name, p.Endpoint)
	}
}

func (n *Notifier) deliver(ctx context.Context, name, endpoint string, params ChangeRecordedParams) {
	var resp *JSONRPCResponse
	err := n.breakers.Get(endpoint).Execute(func() error {
		var err error
		resp, err = n.client.Call(ctx, endpoint, MethodChangeRecorded, params)
		return err
	})

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		n.logger.Warn("plugin circuit open, dropping notification",
			"plugin", name, "endpoint", endpoint, "entry_id", params.EntryID)
		n.record(OutcomeCircuitOpen)
	case err != nil:
		n.logger.Error("plugin rpc failed",
			"plugin", name, "endpoint", endpoint, "entry_id", params.EntryID, "error", err)
		n.record(OutcomeFailed)
	case resp.Error != nil:
		n.logger.Error("plugin rpc returned error",
			"plugin", name, "endpoint", endpoint, "entry_id", params.EntryID, "error", resp.Error)
		n.record(OutcomeRPCError)
	default:
		n.record(OutcomeDelivered)
	}
}

func (n *Notifier) record(outcome string) {
	if n.recorder != nil {
		n.recorder.RecordDelivery(outcome)
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
