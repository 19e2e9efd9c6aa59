package realtime

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nurpe/agro-contracts/internal/metrics"
)

// Dispatcher delivers events to connected users on a deliver-or-drop basis.
// Nothing is queued for offline users; the notification ledger is what clients resync from.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(registry *Registry, log zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		log:      log.With().Str("component", "dispatcher").Logger(),
		metrics:  m,
	}
}

// Dispatch reports whether the event was handed to an open channel of userID.
func (d *Dispatcher) Dispatch(userID uuid.UUID, event Event) (delivered bool) {
	if d == nil || event == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("event", string(event.Kind())).Msg("dispatch panicked")
			delivered = false
		}
		d.metrics.EventDispatched(string(event.Kind()), delivered)
	}()

	if d.registry == nil {
		d.log.Error().Str("event", string(event.Kind())).Msg("connection registry not initialized; skipping push")
		return false
	}

	ch, ok := d.registry.Lookup(userID)
	if !ok {
		d.log.Debug().Str("user_id", userID.String()).Str("event", string(event.Kind())).Msg("no open channel for user")
		return false
	}
	if !ch.Send(NewEnvelope(event)) {
		d.log.Warn().Str("user_id", userID.String()).Str("event", string(event.Kind())).Msg("dropping event; channel not accepting")
		return false
	}
	d.log.Debug().Str("user_id", userID.String()).Str("event", string(event.Kind())).Msg("event pushed")
	return true
}

// DispatchMany pushes to every listed user except skip and returns the number delivered.
func (d *Dispatcher) DispatchMany(userIDs []uuid.UUID, event Event, skip uuid.UUID) int {
	delivered := 0
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if userID == skip && skip != uuid.Nil {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		if d.Dispatch(userID, event) {
			delivered++
		}
	}
	return delivered
}

// Broadcast pushes to every connected user except skip.
func (d *Dispatcher) Broadcast(event Event, skip uuid.UUID) int {
	if d == nil || d.registry == nil {
		return 0
	}
	return d.DispatchMany(d.registry.Users(), event, skip)
}
