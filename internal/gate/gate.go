package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"askallery/internal/middleware"
	"askallery/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrClassificationUnavailable means no label could be obtained in time.
	ErrClassificationUnavailable = errors.New("image classification unavailable")
	// ErrImageRejected is returned by Check for any rejected verdict.
	ErrImageRejected = errors.New("image rejected")
)

const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultTimeout    = 20 * time.Second
)

// Options tune a Gate. Zero values select the defaults.
type Options struct {
	Attempts   int
	RetryDelay time.Duration
	Timeout    time.Duration
	// LocalDev accepts every image without calling the oracle.
	LocalDev bool
}

// Verdict is the outcome of one classification.
type Verdict struct {
	Accepted bool
	Label    string
	Attempts int
	Reason   string
	Err      error
}

// Gate classifies images through an Oracle and applies a Policy to the label.
type Gate struct {
	oracle Oracle
	policy Policy
	opts   Options
}

// New builds a Gate. A nil oracle is only valid in local-dev mode; otherwise
// every classification fails closed.
func New(oracle Oracle, policy Policy, opts Options) *Gate {
	if opts.Attempts < 1 {
		opts.Attempts = DefaultAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Gate{oracle: oracle, policy: policy, opts: opts}
}

// LocalDev reports whether the gate bypasses classification.
func (g *Gate) LocalDev() bool {
	return g.opts.LocalDev
}

// Classify obtains a label for img and applies the policy. It never returns
// an accepted verdict without a label unless the gate is in local-dev mode.
func (g *Gate) Classify(ctx context.Context, img Image) Verdict {
	ctx, span := observability.StartSpan(ctx, "gate.classify",
		attribute.Bool("gate.local_dev", g.opts.LocalDev),
	)

	v := g.classify(ctx, img)

	result := "rejected"
	if v.Accepted {
		result = "accepted"
	}
	observability.GateDecisions.WithLabelValues(result).Inc()
	span.SetAttributes(
		attribute.String("gate.result", result),
		attribute.String("gate.label", v.Label),
		attribute.Int("gate.attempts", v.Attempts),
	)
	observability.EndSpan(span, v.Err)

	middleware.Logger.InfoContext(ctx, "image classified",
		"result", result,
		"label", v.Label,
		"attempts", v.Attempts,
		"reason", v.Reason,
	)
	return v
}

func (g *Gate) classify(ctx context.Context, img Image) Verdict {
	if g.opts.LocalDev {
		return Verdict{Accepted: true, Reason: "local development bypass"}
	}
	if g.oracle == nil {
		return Verdict{Reason: "no oracle configured", Err: ErrClassificationUnavailable}
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	label, attempts, err := g.obtainLabel(ctx, img)
	if err != nil {
		return Verdict{
			Attempts: attempts,
			Reason:   "no label after retries",
			Err:      fmt.Errorf("%w: %w", ErrClassificationUnavailable, err),
		}
	}

	ok, reason := g.policy.Allows(label)
	return Verdict{Accepted: ok, Label: label, Attempts: attempts, Reason: reason}
}

// obtainLabel calls the oracle until it returns a non-empty label, the
// attempts run out or ctx expires.
func (g *Gate) obtainLabel(ctx context.Context, img Image) (string, int, error) {
	var lastErr error
	attempts := 0

	for attempts < g.opts.Attempts {
		if attempts > 0 && !sleepContext(ctx, g.opts.RetryDelay) {
			break
		}
		attempts++

		label, err := g.oracle.Classify(ctx, img)
		label = strings.TrimSpace(label)
		switch {
		case err != nil:
			lastErr = err
			observability.GateOracleAttempts.WithLabelValues("error").Inc()
		case label == "":
			lastErr = errors.New("oracle returned an empty label")
			observability.GateOracleAttempts.WithLabelValues("empty").Inc()
		default:
			observability.GateOracleAttempts.WithLabelValues("ok").Inc()
			return label, attempts, nil
		}

		middleware.Logger.WarnContext(ctx, "oracle attempt failed",
			"attempt", attempts,
			"error", lastErr,
		)
		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		lastErr = ctx.Err()
	}
	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	return "", attempts, lastErr
}

// Check is Classify reduced to an error. Rejections wrap ErrImageRejected and,
// when classification failed, ErrClassificationUnavailable too.
func (g *Gate) Check(ctx context.Context, img Image) error {
	v := g.Classify(ctx, img)
	if v.Accepted {
		return nil
	}
	if v.Err != nil {
		return fmt.Errorf("%w: %w", ErrImageRejected, v.Err)
	}
	return fmt.Errorf("%w: %s", ErrImageRejected, v.Reason)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
