// Package providers holds one Deliverer per notification channel and the
// Dispatcher that runs them behind a uniform result contract.
package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mewayz-notifications/internal/logging"
	"mewayz-notifications/internal/models"
)

// Deliverer sends a notification over one channel. Implementations report
// failures through the returned result instead of an error.
type Deliverer interface {
	Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, n *models.Notification) models.DeliveryResult

func (f DelivererFunc) Deliver(ctx context.Context, n *models.Notification) models.DeliveryResult {
	return f(ctx, n)
}

// Dispatcher routes a notification to the Deliverer registered for a channel.
type Dispatcher struct {
	mu         sync.RWMutex
	deliverers map[models.Channel]Deliverer
	timeout    time.Duration
	logger     *logging.Logger
}

// NewDispatcher creates an empty dispatcher. Every Deliver call is bounded by
// timeout; zero disables the bound.
func NewDispatcher(logger *logging.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		deliverers: make(map[models.Channel]Deliverer),
		timeout:    timeout,
		logger:     logger,
	}
}

// Register installs d for channel c, replacing any previous one.
func (d *Dispatcher) Register(c models.Channel, dl Deliverer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliverers[c] = dl
}

// Supports reports whether a deliverer is registered for c.
func (d *Dispatcher) Supports(c models.Channel) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.deliverers[c]
	return ok
}

// Deliver runs the channel's deliverer on a private copy of n. Panics,
// timeouts and missing deliverers all come back as failed results.
func (d *Dispatcher) Deliver(ctx context.Context, c models.Channel, n *models.Notification) models.DeliveryResult {
	d.mu.RLock()
	dl, ok := d.deliverers[c]
	d.mu.RUnlock()
	if !ok {
		return models.Failed(fmt.Sprintf("no deliverer registered for channel %s", c))
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	snapshot := n.Clone()
	done := make(chan models.DeliveryResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Errorf("Deliverer for %s panicked on notification %s: %v", c, n.ID, r)
				done <- models.Failed(fmt.Sprintf("%s deliverer panicked: %v", c, r))
			}
		}()
		done <- dl.Deliver(ctx, snapshot)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		d.logger.Warnf("Delivery via %s for notification %s abandoned: %v", c, n.ID, ctx.Err())
		return models.Failed(fmt.Sprintf("%s delivery timed out: %v", c, ctx.Err()))
	}
}
