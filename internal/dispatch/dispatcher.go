// Package dispatch drains the pending application queue through a mail
// Transport, moving each record to sent or failed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jonathan/jobmatch/internal/queue"
)

// Transport delivers one application email. ok=false with a nil error is a
// delivery refusal (bounce, rejected address); a non-nil error is a transport
// failure and leaves the record pending for the next run.
type Transport interface {
	Send(ctx context.Context, email, name, subject, body string) (ok bool, message string, err error)
}

// LogTransport only logs what would be sent.
type LogTransport struct {
	Logger *log.Logger
}

// Send implements Transport.
func (t LogTransport) Send(_ context.Context, email, name, subject, _ string) (bool, string, error) {
	logger := t.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[DISPATCH] dry run: would send %q to %s <%s>", subject, name, email)
	return true, "dry run", nil
}

// Result summarizes one dispatch pass.
type Result struct {
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Retry   int      `json:"retry"`
	Errors  []string `json:"errors,omitempty"`
}

// ProgressFunc is called after each record is handled.
type ProgressFunc func(done, total int)

// Dispatcher moves pending applications through a Transport.
type Dispatcher struct {
	queue     queue.Store
	transport Transport
	logger    *log.Logger
}

// New creates a Dispatcher.
func New(q queue.Store, t Transport, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{queue: q, transport: t, logger: logger}
}

// Run sends up to limit pending applications (all when limit <= 0), oldest
// first. Records that need a manually found address are left pending.
func (d *Dispatcher) Run(ctx context.Context, limit int, progress ProgressFunc) (*Result, error) {
	pending, err := d.queue.List(ctx, queue.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending applications: %w", err)
	}

	res := &Result{}
	total := len(pending)
	for i, app := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if limit > 0 && res.Sent+res.Failed >= limit {
			break
		}

		d.handle(ctx, &app, res)
		if progress != nil {
			progress(i+1, total)
		}
	}

	d.logger.Printf("[DISPATCH] sent=%d failed=%d skipped=%d retry=%d", res.Sent, res.Failed, res.Skipped, res.Retry)
	return res, nil
}

func (d *Dispatcher) handle(ctx context.Context, app *queue.Application, res *Result) {
	if app.RequiresManualEmail || app.RecipientEmail == "" {
		res.Skipped++
		return
	}

	ok, message, err := d.transport.Send(ctx, app.RecipientEmail, app.RecipientName, app.SubjectLine, app.MotivationLetter)
	if err != nil {
		d.logger.Printf("[DISPATCH] Transport error for %s, leaving pending: %v", app.ID, err)
		res.Retry++
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", app.ID, err))
		return
	}

	to := queue.StatusSent
	if !ok {
		to = queue.StatusFailed
	}
	if err := d.queue.Move(ctx, app.ID, queue.StatusPending, to, message); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			// Another dispatcher already moved it.
			res.Skipped++
			return
		}
		d.logger.Printf("[DISPATCH] Failed to move %s to %s: %v", app.ID, to, err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", app.ID, err))
		return
	}

	if ok {
		res.Sent++
		d.logger.Printf("[DISPATCH] Sent %s (%s at %s)", app.ID, app.JobTitle, app.CompanyName)
	} else {
		res.Failed++
		d.logger.Printf("[DISPATCH] Delivery refused for %s: %s", app.ID, message)
	}
}
