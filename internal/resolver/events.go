package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

const publishTimeout = 2 * time.Second

// Event announces a completed resolution to downstream consumers.
type Event struct {
	ID         string         `json:"id"`
	Domain     string         `json:"domain"`
	Source     traffic.Source `json:"source"`
	IsEstimate bool           `json:"isEstimate"`
	ResolvedAt time.Time      `json:"resolvedAt"`
}

// emit publishes rec as an Event. Publish failures are logged and never
// affect the resolution.
func (r *Resolver) emit(ctx context.Context, rec traffic.Record) {
	if r.publisher == nil || r.cfg.EventsTopic == "" {
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	evt := Event{
		ID:         id.String(),
		Domain:     rec.Domain,
		Source:     rec.Source,
		IsEstimate: rec.IsEstimate,
		ResolvedAt: r.clock.Now().UTC(),
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if _, err := r.publisher.Publish(pubCtx, r.cfg.EventsTopic, evt); err != nil {
		r.logger.Warn("publish resolution event failed",
			zap.String("domain", rec.Domain),
			zap.String("topic", r.cfg.EventsTopic),
			zap.Error(err),
		)
	}
}
