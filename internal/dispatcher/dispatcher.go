package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrBridgeDelivery wraps every transport-level failure to reach the bridge.
	ErrBridgeDelivery = errors.New("bridge delivery failed")

	ErrNoHealthy = fmt.Errorf("no healthy providers")
	ErrNoAcquire = fmt.Errorf("provider not acquired")
)

// UnknownError is the note stored when the bridge refuses without a reason.
const UnknownError = "unknown error"

type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
	maxAttempts       int
	timeout           time.Duration
}

// NewDispatcher builds a dispatcher that bounds every attempt by timeout.
func NewDispatcher(provs []Provider, maxAttempts int, timeout time.Duration) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Dispatcher{providers: provs, maxAttempts: maxAttempts, timeout: timeout}
}

func (d *Dispatcher) selectProvider() (Provider, error) {
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Ready() {
			healthy = append(healthy, p)
		}
	}

	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))

	return healthy[idx], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, out Outbound) (SendResult, error) {
	p, err := d.selectProvider()
	if err != nil {
		return SendResult{}, err
	}

	if !p.Acquire() {
		return SendResult{}, ErrNoAcquire
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return p.Send(ctx, out)
}

// Send delivers out, retrying transport failures up to maxAttempts. A bridge
// refusal is returned as-is without retry. Any returned error wraps
// ErrBridgeDelivery.
func (d *Dispatcher) Send(ctx context.Context, out Outbound) (SendResult, error) {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		res, err := d.tryOnce(ctx, out)
		if err == nil {
			if !res.Success && res.Error == "" {
				res.Error = UnknownError
			}
			return res, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
	}

	return SendResult{}, fmt.Errorf("%w: %w", ErrBridgeDelivery, last)
}
