// Package stage defines the uniform adapter contract every pipeline stage
// speaks: one external call wrapped behind Execute, with all failure modes
// represented in the returned Result; an adapter never raises past its
// boundary. The controller alone decides whether a failure is fatal.
package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/inquiry-cli/internal/model"
	"github.com/sells-group/inquiry-cli/internal/repair"
	"github.com/sells-group/inquiry-cli/internal/resilience"
)

// Status tags a Result variant.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusFailure  Status = "failure"
)

// Result is the tagged outcome of one adapter execution.
type Result[T any] struct {
	Status   Status
	Output   T
	Reason   string // degradation reason, empty otherwise
	Err      error  // set only for StatusFailure
	Usage    model.TokenUsage
	Attempts int // calls made, including retries
}

// Success builds a successful result.
func Success[T any](out T) Result[T] {
	return Result[T]{Status: StatusSuccess, Output: out}
}

// Degraded builds a schema-valid but low-confidence or partial result.
func Degraded[T any](out T, reason string) Result[T] {
	return Result[T]{Status: StatusDegraded, Output: out, Reason: reason}
}

// Failure builds a failed result carrying the originating error.
func Failure[T any](err error) Result[T] {
	return Result[T]{Status: StatusFailure, Err: err}
}

// Usable reports whether the result carries output the pipeline can consume.
func (r Result[T]) Usable() bool {
	return r.Status == StatusSuccess || r.Status == StatusDegraded
}

// SchemaError reports output that parsed but failed stage schema validation
// (missing required fields, enum outside the allowed set).
type SchemaError struct {
	Stage  string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Stage, e.Detail)
}

// Completer is the intelligence-call capability. No contract on output
// shape; all structure is imposed downstream by repair + validation.
type Completer interface {
	Complete(ctx context.Context, prompt, schemaHint string) (string, model.TokenUsage, error)
}

// Intelligence wraps one intelligence call: complete, repair, validate.
// On a repair or schema failure it retries exactly once with a stricter
// instruction before returning Failure.
type Intelligence[I, O any] struct {
	Name      string
	Completer Completer
	Timeout   time.Duration

	// Prompt builds the prompt and schema hint for the input.
	Prompt func(in I) (prompt, schemaHint string)

	// Validate checks the repaired record against the stage schema.
	// Returning a *SchemaError triggers the single strict retry.
	Validate func(out O) error

	// Degradation optionally classifies a schema-valid output as degraded.
	Degradation func(out O) (bool, string)
}

// strictSuffix is appended to the prompt on the one retry after a repair or
// schema failure.
const strictSuffix = "\n\nYour previous answer was not valid. Respond with exactly one JSON object matching the schema, with no surrounding prose, no code fences, and no repetition."

// Execute runs the intelligence call through repair and validation.
func (a *Intelligence[I, O]) Execute(ctx context.Context, in I) Result[O] {
	prompt, hint := a.Prompt(in)

	var usage model.TokenUsage
	attempts := 1
	out, attemptUsage, err := a.attempt(ctx, prompt, hint)
	usage.Add(attemptUsage)
	if err != nil && retryableIntelligence(err) && ctx.Err() == nil {
		zap.L().Warn("stage: retrying with strict prompt",
			zap.String("stage", a.Name),
			zap.Error(err),
		)
		attempts++
		out, attemptUsage, err = a.attempt(ctx, prompt+strictSuffix, hint)
		usage.Add(attemptUsage)
	}
	if err != nil {
		res := Failure[O](eris.Wrap(err, "stage: "+a.Name))
		res.Usage = usage
		res.Attempts = attempts
		return res
	}

	if a.Degradation != nil {
		if degraded, reason := a.Degradation(out); degraded {
			res := Degraded(out, reason)
			res.Usage = usage
			res.Attempts = attempts
			return res
		}
	}

	res := Success(out)
	res.Usage = usage
	res.Attempts = attempts
	return res
}

func (a *Intelligence[I, O]) attempt(ctx context.Context, prompt, hint string) (O, model.TokenUsage, error) {
	var out O

	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	raw, usage, err := a.Completer.Complete(ctx, prompt, hint)
	if err != nil {
		return out, usage, err
	}

	if err := repair.Into(raw, &out); err != nil {
		return out, usage, err
	}

	if a.Validate != nil {
		if err := a.Validate(out); err != nil {
			return out, usage, err
		}
	}

	return out, usage, nil
}

// retryableIntelligence reports whether a repair or schema failure warrants
// the single strict retry. Transport errors already got their retries inside
// the client; retrying them with a different prompt changes nothing.
func retryableIntelligence(err error) bool {
	var re *repair.Error
	if errors.As(err, &re) {
		return true
	}
	var se *SchemaError
	return errors.As(err, &se)
}

// IO wraps one I/O call (search, fetch) with bounded retries for transient
// failure classes only. Permanent failures return immediately.
type IO[I, O any] struct {
	Name    string
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Call    func(ctx context.Context, in I) (O, error)
}

// Execute runs the I/O call with retry semantics, mapping every error into
// the Failure variant.
func (a *IO[I, O]) Execute(ctx context.Context, in I) Result[O] {
	cfg := a.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger(a.Name, "execute")
	}

	var attempts int
	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (O, error) {
		attempts++
		if a.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.Timeout)
			defer cancel()
		}
		return a.Call(ctx, in)
	})
	if err != nil {
		res := Failure[O](eris.Wrap(err, "stage: "+a.Name))
		res.Attempts = attempts
		return res
	}
	res := Success(out)
	res.Attempts = attempts
	return res
}

// DescribeError flattens an adapter error for stage telemetry.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
