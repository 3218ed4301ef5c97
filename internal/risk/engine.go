package risk

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ecomverify/internal/domain"
	"ecomverify/internal/logger"
	"ecomverify/internal/metrics"
	"ecomverify/internal/probe"
	sentryutil "ecomverify/internal/sentry"
)

// Engine runs the five probes against a URL and aggregates them with the
// lexical features into a verdict. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	rules  Rules
	probes []probe.Probe
	now    func() time.Time
}

type Option func(*Engine)

// WithProbes replaces the default probe set.
func WithProbes(probes ...probe.Probe) Option {
	return func(e *Engine) { e.probes = probes }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the default probes over client. A nil client gets the
// fetcher's default one.
func NewEngine(rules Rules, client *http.Client, opts ...Option) *Engine {
	fetcher := probe.NewFetcher(client, rules.Probes.UserAgent, rules.Probes.MaxBodyBytes)
	e := &Engine{
		rules:  rules,
		probes: probe.All(fetcher, rules.Probes),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Rules() Rules { return e.rules }

// Analyze never fails. Any error or panic past the probes yields the
// conservative fallback result.
func (e *Engine) Analyze(ctx context.Context, target string) (res domain.AnalysisResult) {
	start := time.Now()
	fv := ExtractFeatures(e.rules, target)
	defer func() {
		if r := recover(); r != nil {
			res = e.fallback(target, fv, fmt.Errorf("aggregation panicked: %v", r))
		}
		metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}()

	results := e.runProbes(ctx, target)
	res, err := Aggregate(e.rules, target, fv, results, e.now())
	if err != nil {
		return e.fallback(target, fv, err)
	}
	logger.Debug("analysis complete",
		zap.String("url", target),
		zap.String("verdict", string(res.Verdict)),
		zap.Float64("risk", res.RiskScore),
		zap.Bool("strict", res.StrictRuleFired),
	)
	return res
}

// runProbes runs every probe concurrently, each under its own budget. Each
// goroutine owns one slot of the result slice.
func (e *Engine) runProbes(ctx context.Context, target string) []domain.ProbeResult {
	results := make([]domain.ProbeResult, len(e.probes))
	var g errgroup.Group
	for i, p := range e.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, e.rules.ProbeBudget)
			defer cancel()

			started := time.Now()
			r := probe.Run(pctx, p, target)
			metrics.ProbeDuration.WithLabelValues(p.Name()).Observe(time.Since(started).Seconds())
			if r.Degraded {
				metrics.ProbeDegradedTotal.WithLabelValues(p.Name()).Inc()
				logger.Debug("probe degraded", zap.String("probe", p.Name()), zap.String("url", target), zap.String("error", r.Error))
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) fallback(target string, fv domain.FeatureVector, cause error) domain.AnalysisResult {
	metrics.FallbacksTotal.Inc()
	logger.Warn("analysis fell back to conservative verdict", zap.String("url", target), zap.Error(cause))
	sentryutil.CaptureError(cause, map[string]string{"component": "risk_engine"})
	return Fallback(e.rules, target, fv, cause, e.now())
}
