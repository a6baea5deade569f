package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/generator"
	"github.com/dukex/wardflow/pkg/orchestrator"
)

// RemoteTrigger forwards force requests over the event bus to a scheduler
// running in another process.
type RemoteTrigger struct {
	publisher eventbus.EventPublisher
	actor     string
	now       func() time.Time
}

func NewRemoteTrigger(publisher eventbus.EventPublisher, actor string) *RemoteTrigger {
	return &RemoteTrigger{
		publisher: publisher,
		actor:     actor,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ForceCycle publishes the request. Whether the remote cycle runs or is skipped
// is not known to the caller, so accepted requests always report true.
func (r *RemoteTrigger) ForceCycle(ctx context.Context, domain generator.Domain, reason string) (bool, error) {
	if !domain.Valid() {
		return false, fmt.Errorf("%w: %q", orchestrator.ErrUnknownDomain, domain)
	}

	err := r.publisher.Publish(ctx, events.ForceRequested(string(domain), r.actor, reason, r.now()))
	if err != nil {
		return false, fmt.Errorf("failed to publish force request: %w", err)
	}

	return true, nil
}
