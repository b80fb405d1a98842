// Package resolver turns a raw domain into a traffic record by walking an
// ordered chain of sources: the paid provider, the free rank list, and
// finally the closed-form estimate. Any stage failure other than invalid
// input only advances the chain.
package resolver

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/trafficpeek/internal/clock"
	"github.com/JakeFAU/trafficpeek/internal/estimate"
	"github.com/JakeFAU/trafficpeek/internal/history"
	"github.com/JakeFAU/trafficpeek/internal/metrics"
	"github.com/JakeFAU/trafficpeek/internal/normalize"
	"github.com/JakeFAU/trafficpeek/internal/policy/ratelimit"
	"github.com/JakeFAU/trafficpeek/internal/provider"
	"github.com/JakeFAU/trafficpeek/internal/ranklist"
	"github.com/JakeFAU/trafficpeek/internal/traffic"
)

const notFoundMessage = "no traffic data is available for this domain; supply a provider API key for live data"

// Config controls the chain.
type Config struct {
	Stages            []Stage
	ProviderTimeout   time.Duration
	RankListTimeout   time.Duration
	DefaultCredential string
	BatchConcurrency  int
	EventsTopic       string
}

// Request is one resolution input. A zero ReferenceDate means today.
type Request struct {
	Domain        string
	Credential    string
	ReferenceDate time.Time
}

// Result pairs a record with its error for batch resolution.
type Result struct {
	Record traffic.Record
	Err    error
}

// Resolver runs the resolution chain. It is safe for concurrent use when its
// collaborators are.
type Resolver struct {
	provider  traffic.ProviderSource
	ranks     traffic.RankSource
	cache     traffic.RankCache
	publisher traffic.Publisher
	model     estimate.Model
	clock     traffic.Clock
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// New constructs a Resolver. provider, ranks, cache and publisher may be nil;
// the corresponding capability is then skipped.
func New(
	providerSource traffic.ProviderSource,
	ranks traffic.RankSource,
	cache traffic.RankCache,
	publisher traffic.Publisher,
	model estimate.Model,
	clk traffic.Clock,
	cfg Config,
	logger *zap.Logger,
) *Resolver {
	if len(cfg.Stages) == 0 {
		cfg.Stages = DefaultStages
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 8 * time.Second
	}
	if cfg.RankListTimeout <= 0 {
		cfg.RankListTimeout = 5 * time.Second
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if model == (estimate.Model{}) {
		model = estimate.DefaultModel()
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		provider:  providerSource,
		ranks:     ranks,
		cache:     cache,
		publisher: publisher,
		model:     model,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/JakeFAU/trafficpeek/internal/resolver"),
	}
}

// Resolve normalizes req.Domain and walks the enabled stages until one
// yields a record. Invalid input fails before any network call. When every
// enabled stage soft-fails the error wraps traffic.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, req Request) (traffic.Record, error) {
	domain, err := normalize.Domain(req.Domain)
	if err != nil {
		metrics.ObserveResolutionError(errorKind(err))
		return traffic.Record{}, err
	}

	ref := req.ReferenceDate
	if ref.IsZero() {
		ref = r.clock.Now()
	}
	ref = traffic.Day(ref)

	credential := strings.TrimSpace(req.Credential)
	if credential == "" {
		credential = r.cfg.DefaultCredential
	}

	ctx, span := r.tracer.Start(ctx, "resolver.Resolve", trace.WithAttributes(attribute.String("domain", domain)))
	defer span.End()

	for _, stage := range r.cfg.Stages {
		rec, ok := r.runStage(ctx, stage, domain, credential, ref)
		if !ok {
			continue
		}
		span.SetAttributes(attribute.String("source", string(rec.Source)))
		metrics.ObserveResolution(string(rec.Source))
		r.logger.Debug("domain resolved",
			zap.String("domain", domain),
			zap.String("source", string(rec.Source)),
			zap.Bool("estimate", rec.IsEstimate),
		)
		r.emit(ctx, rec)
		return rec, nil
	}

	span.SetStatus(codes.Error, "not found")
	metrics.ObserveResolutionError(errorKind(traffic.ErrNotFound))
	return traffic.Record{}, &traffic.DomainError{
		Err:     traffic.ErrNotFound,
		Domain:  domain,
		Message: notFoundMessage,
	}
}

func (r *Resolver) runStage(ctx context.Context, stage Stage, domain, credential string, ref time.Time) (traffic.Record, bool) {
	ctx, span := r.tracer.Start(ctx, "resolver.stage."+string(stage))
	defer span.End()

	var (
		rec    traffic.Record
		ok     bool
		reason traffic.SoftReason
		err    error
	)
	switch stage {
	case StageProvider:
		rec, ok, reason, err = r.fromProvider(ctx, domain, credential, ref)
	case StageRankList:
		rec, ok, reason, err = r.fromRankList(ctx, domain, ref)
	case StageEstimate:
		rec, ok = r.fromShape(domain, ref), true
	}
	if ok {
		return rec, true
	}
	if reason != "" {
		span.SetAttributes(attribute.String("soft_failure", string(reason)))
		r.softFailure(stage, domain, reason, err)
	}
	return traffic.Record{}, false
}

// fromProvider returns an empty reason when the stage is skipped rather than
// failed.
func (r *Resolver) fromProvider(
	ctx context.Context,
	domain, credential string,
	ref time.Time,
) (traffic.Record, bool, traffic.SoftReason, error) {
	if r.provider == nil || credential == "" {
		return traffic.Record{}, false, "", nil
	}
	if ctx.Err() != nil {
		return traffic.Record{}, false, traffic.ReasonTimeout, ctx.Err()
	}

	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.ProviderTimeout)
	defer cancel()

	payload, err := r.provider.Lookup(stageCtx, domain, credential)
	if err != nil {
		return traffic.Record{}, false, classify(stageCtx, err), err
	}
	rnd := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // illustrative noise only
	rec, ok := provider.Adapt(domain, payload, ref, rnd)
	if !ok {
		return traffic.Record{}, false, traffic.ReasonNoData, nil
	}
	return rec, true, "", nil
}

func (r *Resolver) fromRankList(ctx context.Context, domain string, ref time.Time) (traffic.Record, bool, traffic.SoftReason, error) {
	if r.ranks == nil && r.cache == nil {
		return traffic.Record{}, false, "", nil
	}
	if ctx.Err() != nil {
		return traffic.Record{}, false, traffic.ReasonTimeout, ctx.Err()
	}

	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.RankListTimeout)
	defer cancel()

	rank, err := r.lookupRank(stageCtx, domain)
	if err != nil {
		return traffic.Record{}, false, classify(stageCtx, err), err
	}
	return r.fromRank(domain, rank, ref, traffic.SourceRankList), true, "", nil
}

func (r *Resolver) lookupRank(ctx context.Context, domain string) (int, error) {
	if r.cache != nil {
		rank, ok, err := r.cache.GetRank(ctx, domain)
		switch {
		case err != nil:
			metrics.ObserveRankCache("error")
			r.logger.Warn("rank cache read failed", zap.String("domain", domain), zap.Error(err))
		case ok && rank > 0:
			metrics.ObserveRankCache("hit")
			return rank, nil
		default:
			metrics.ObserveRankCache("miss")
		}
	}
	if r.ranks == nil {
		return 0, traffic.ErrNotListed
	}

	rank, err := r.ranks.Rank(ctx, domain)
	if err != nil {
		return 0, err
	}
	if rank <= 0 || rank > traffic.MaxRank {
		return 0, traffic.ErrNotListed
	}
	if r.cache != nil {
		if err := r.cache.SetRank(ctx, domain, rank); err != nil {
			r.logger.Warn("rank cache write failed", zap.String("domain", domain), zap.Error(err))
		}
	}
	return rank, nil
}

func (r *Resolver) fromShape(domain string, ref time.Time) traffic.Record {
	return r.fromRank(domain, r.model.RankFromShape(domain), ref, traffic.SourceEstimate)
}

func (r *Resolver) fromRank(domain string, rank int, ref time.Time, source traffic.Source) traffic.Record {
	est := r.model.FromRank(rank)
	return traffic.Assemble(domain, est.Metrics(rank), history.Generate(domain, est.Visits, ref), source)
}

func (r *Resolver) softFailure(stage Stage, domain string, reason traffic.SoftReason, err error) {
	metrics.ObserveSoftFailure(string(stage), string(reason))
	fields := []zap.Field{
		zap.String("domain", domain),
		zap.String("stage", string(stage)),
		zap.String("reason", string(reason)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if reason == traffic.ReasonNotListed || reason == traffic.ReasonNoData {
		r.logger.Debug("stage yielded no data", fields...)
		return
	}
	r.logger.Warn("stage failed, advancing", fields...)
}

// classify maps a stage error onto a soft failure reason. stageCtx is the
// stage-scoped context so its expiry is reported as a timeout.
func classify(stageCtx context.Context, err error) traffic.SoftReason {
	var (
		providerStatus *provider.StatusError
		rankStatus     *ranklist.StatusError
	)
	switch {
	case errors.Is(err, traffic.ErrNotListed):
		return traffic.ReasonNotListed
	case errors.Is(err, ratelimit.ErrLimited):
		return traffic.ReasonRateLimited
	case provider.BreakerOpen(err):
		return traffic.ReasonBreakerOpen
	case errors.As(err, &providerStatus), errors.As(err, &rankStatus):
		return traffic.ReasonStatus
	case stageCtx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		return traffic.ReasonTimeout
	default:
		return traffic.ReasonTransport
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, traffic.ErrUnsupportedScheme):
		return "unsupported_scheme"
	case errors.Is(err, traffic.ErrInvalidDomain):
		return "invalid_domain"
	case errors.Is(err, traffic.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
