// Package poller implements the pull side of job status tracking: a
// fixed-interval polling loop that stops on a terminal state or gives up
// after a maximum wait without assuming the job failed.
package poller

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// Status is the minimal job snapshot the poller needs. Consumers map their
// API responses onto it.
type Status struct {
	TrabajoID           string
	Estado              string
	Etapa               string
	Progreso            float64
	TotalRegistros      int
	RegistrosProcesados int
	RegistrosExitosos   int
	RegistrosConError   int
	Mensaje             string
}

// Terminal reports whether the state admits no further transitions
func (s Status) Terminal() bool {
	switch s.Estado {
	case "completado", "error", "cancelado":
		return true
	}
	return false
}

// Client fetches one status snapshot per call
type Client interface {
	GetStatus(ctx context.Context, trabajoID string) (Status, error)
}

// Result is the outcome of one polling session
type Result struct {
	Status Status
	// Polls is how many snapshots were fetched
	Polls int
	// TimedOut marks that MaxWait elapsed before a terminal state. The job
	// keeps running server-side; this is not a failure verdict.
	TimedOut bool
}

// ErrSinTrabajo is returned when Wait is called with an empty job id
var ErrSinTrabajo = errors.New("poller: se requiere un id de trabajo")

// Poller drives a polling session against a Client
type Poller struct {
	client   Client
	interval time.Duration
	maxWait  time.Duration
	limiter  *rate.Limiter
	// OnUpdate, when set, observes every fetched snapshot
	OnUpdate func(Status)
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval overrides the polling interval
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxWait overrides the session deadline
func WithMaxWait(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.maxWait = d
		}
	}
}

// New creates a Poller with the default 2s interval and 5m deadline. The
// rate limiter enforces the interval even when callers share one Poller
// across goroutines.
func New(client Client, opts ...Option) *Poller {
	p := &Poller{
		client:   client,
		interval: 2 * time.Second,
		maxWait:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.limiter = rate.NewLimiter(rate.Every(p.interval), 1)
	return p
}

// Wait polls until the job reaches a terminal state, the deadline passes, or
// ctx is cancelled. On deadline the last snapshot comes back with
// TimedOut=true and a message noting the job may still be running; transient
// fetch errors end the session only when no snapshot was ever obtained.
func (p *Poller) Wait(ctx context.Context, trabajoID string) (Result, error) {
	if trabajoID == "" {
		return Result{}, ErrSinTrabajo
	}

	ctx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	var res Result
	obtenido := false
	for {
		// The limiter reports its own error type when the deadline cuts the
		// wait short, so sessions are finalized off ctx.Err()
		if err := p.limiter.Wait(ctx); err != nil {
			return p.agotado(ctx, res, obtenido, err)
		}

		status, err := p.client.GetStatus(ctx, trabajoID)
		if err != nil {
			if ctx.Err() != nil {
				return p.agotado(ctx, res, obtenido, ctx.Err())
			}
			if !obtenido {
				return res, err
			}
			// Keep the last good snapshot and retry on the next tick
			continue
		}

		obtenido = true
		res.Status = status
		res.Polls++
		if p.OnUpdate != nil {
			p.OnUpdate(status)
		}

		if status.Terminal() {
			return res, nil
		}
	}
}

// agotado finalizes a session cut short by the deadline or caller
func (p *Poller) agotado(ctx context.Context, res Result, obtenido bool, err error) (Result, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && obtenido {
		res.TimedOut = true
		res.Status.Mensaje = "tiempo de espera agotado: el procesamiento puede continuar en segundo plano"
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, err
}
