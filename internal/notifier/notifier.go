// Package notifier pushes applicationUpdate events to online users.
//
// Delivery is at-most-once and fire-and-forget: Emit never returns an error.
// The Result it returns is already logged; callers discard it explicitly.
package notifier

import (
	"context"
	"time"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/common/metrics"
	"citizen-portal/internal/models"
	"citizen-portal/internal/presence"
)

// Directory resolves a user id to its live connection.
type Directory interface {
	Lookup(userID string) (presence.Connection, bool)
}

// Outcome of a single emission.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what happened to one event.
type Result struct {
	Outcome Outcome
	Handle  string
	Err     error
}

// Delivered reports whether the event reached a connection.
func (r Result) Delivered() bool { return r.Outcome == OutcomeDelivered }

type Notifier struct {
	directory Directory
	logger    logger.Logger
	timeout   time.Duration
	now       func() time.Time
}

// New builds a Notifier. timeout bounds each send; zero means no bound
// beyond the caller's context.
func New(directory Directory, log logger.Logger, timeout time.Duration) *Notifier {
	return &Notifier{
		directory: directory,
		logger:    logger.ForComponent(log, "notifier"),
		timeout:   timeout,
		now:       time.Now,
	}
}

// Notify is Emit for the common (user, resource, kind, status, message) shape.
func (n *Notifier) Notify(ctx context.Context, userID, resourceID string, kind models.Kind, status, message string) Result {
	return n.Emit(ctx, models.NotificationEvent{
		TargetUserID: userID,
		ResourceID:   resourceID,
		Kind:         kind,
		Status:       status,
		Message:      message,
	})
}

// Emit delivers ev to the target user's connection if one is registered
// right now. It must be called after the mutation it reports is committed.
func (n *Notifier) Emit(ctx context.Context, ev models.NotificationEvent) Result {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = n.now().UTC()
	}
	fields := map[string]interface{}{
		"userId":      ev.TargetUserID,
		"resourceId":  ev.ResourceID,
		"serviceType": ev.Kind.ServiceType(),
		"status":      ev.Status,
		"action":      string(ev.Action),
	}

	conn, ok := n.lookup(ev.TargetUserID)
	if !ok {
		n.record(ev, OutcomeDropped)
		n.logger.Debug("no live connection, event dropped", fields)
		return Result{Outcome: OutcomeDropped}
	}

	sendCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	handle := conn.Handle()
	fields["handle"] = handle

	if err := conn.Send(sendCtx, models.EventApplicationUpdate, ev.Payload()); err != nil {
		stdErr := perrors.NewNotifyFailedError(ev.TargetUserID, err)
		fields["error"] = stdErr.Details
		fields["errorCode"] = string(stdErr.Code)
		n.record(ev, OutcomeFailed)
		n.logger.Warn("notification delivery failed", fields)
		return Result{Outcome: OutcomeFailed, Handle: handle, Err: stdErr}
	}

	n.record(ev, OutcomeDelivered)
	n.logger.Debug("notification delivered", fields)
	return Result{Outcome: OutcomeDelivered, Handle: handle}
}

func (n *Notifier) lookup(userID string) (presence.Connection, bool) {
	if userID == "" || n.directory == nil {
		return nil, false
	}
	return n.directory.Lookup(userID)
}

func (n *Notifier) record(ev models.NotificationEvent, outcome Outcome) {
	metrics.NotificationsEmitted.WithLabelValues(ev.Kind.ServiceType(), string(outcome)).Inc()
}
