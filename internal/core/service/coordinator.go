package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/berfenger/statesync2mqtt/internal/core/domain"
	"github.com/berfenger/statesync2mqtt/internal/core/port"
)

const DEFAULT_FETCH_TIMEOUT = 30 * time.Second

type PollResult struct {
	Records  map[string]domain.RawRecord
	Metadata domain.RawRecord
	// Stale is set when the fetch failed and Records are the previous ones
	Stale bool
}

// Coordinator fetches and merges the record groups of one integration
// instance. At most one fetch is outstanding at any time.
type Coordinator struct {
	client       port.RemoteClient
	fetchTimeout time.Duration

	inFlight atomic.Bool

	mu       sync.Mutex
	records  map[string]domain.RawRecord
	metadata domain.RawRecord
}

func NewCoordinator(client port.RemoteClient, fetchTimeout time.Duration) *Coordinator {
	if fetchTimeout <= 0 {
		fetchTimeout = DEFAULT_FETCH_TIMEOUT
	}
	return &Coordinator{
		client:       client,
		fetchTimeout: fetchTimeout,
		records:      map[string]domain.RawRecord{},
	}
}

type fetchOutcome struct {
	snapshot *domain.Snapshot
	err      error
}

// Poll fetches a fresh snapshot. A call made while another fetch is still
// running returns ErrPollInFlight without touching the client.
func (c *Coordinator) Poll(ctx context.Context) (PollResult, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return PollResult{}, domain.ErrPollInFlight
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	done := make(chan fetchOutcome, 1)
	go func() {
		defer cancel()
		snapshot, err := c.client.Fetch(fetchCtx)
		// the flag is released by the fetch itself so a hung client keeps
		// later ticks coalesced instead of stacking fetches. It is cleared
		// before the send so a caller that got the result may poll again.
		c.inFlight.Store(false)
		done <- fetchOutcome{snapshot: snapshot, err: err}
	}()

	var outcome fetchOutcome
	select {
	case outcome = <-done:
	case <-fetchCtx.Done():
		// a result delivered before the deadline still wins
		select {
		case outcome = <-done:
		default:
			outcome = fetchOutcome{err: fetchCtx.Err()}
		}
	}

	if outcome.err == nil && outcome.snapshot == nil {
		outcome.err = errors.New("empty snapshot")
	}
	if outcome.err != nil {
		return c.stale(), fmt.Errorf("%w: %w", domain.ErrPollFailure, outcome.err)
	}

	merged := Merge(outcome.snapshot.Conditions, outcome.snapshot.Alerts)

	c.mu.Lock()
	c.records = merged
	c.metadata = outcome.snapshot.Metadata
	c.mu.Unlock()

	return PollResult{Records: maps.Clone(merged), Metadata: outcome.snapshot.Metadata}, nil
}

// Last returns the latest successful result without fetching.
func (c *Coordinator) Last() PollResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PollResult{Records: maps.Clone(c.records), Metadata: c.metadata}
}

func (c *Coordinator) stale() PollResult {
	r := c.Last()
	r.Stale = true
	return r
}

// Merge flattens conditions and alerts into one map keyed by sensor type.
// Alerts take precedence on key collision.
func Merge(conditions, alerts map[string]domain.RawRecord) map[string]domain.RawRecord {
	merged := make(map[string]domain.RawRecord, len(conditions)+len(alerts))
	maps.Copy(merged, conditions)
	maps.Copy(merged, alerts)
	return merged
}
