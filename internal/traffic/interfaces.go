package traffic

import (
	"context"
	"time"
)

// ProviderSource fetches the opaque analytics payload for a domain using a
// caller-supplied credential.
type ProviderSource interface {
	Lookup(ctx context.Context, domain, credential string) (map[string]any, error)
}

// RankSource returns the current global rank for a domain, or ErrNotListed.
type RankSource interface {
	Rank(ctx context.Context, domain string) (int, error)
}

// RankCache is an optional read/write capability for rank lookups. Staleness
// policy belongs to the implementation.
type RankCache interface {
	GetRank(ctx context.Context, domain string) (rank int, ok bool, err error)
	SetRank(ctx context.Context, domain string, rank int) error
}

// Publisher pushes resolution events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
