package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Route names the handler an event was dispatched to.
type Route string

// Routes (typed).
const (
	RouteResize    Route = "resize"
	RouteReference Route = "reference"
	RouteCascade   Route = "cascade"
	RouteIgnored   Route = "ignored"
)

// Dispatcher routes each change event to exactly one handler. It is the
// terminal error boundary: handler failures and panics are logged and never
// returned to the event transport.
type Dispatcher struct {
	resize    *Orchestrator
	reference *Tracker
	cascade   *Cascade
	logger    *slog.Logger

	async bool
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher. With async set, Dispatch returns as
// soon as the handler is started; Wait joins in-flight handlers.
func NewDispatcher(resize *Orchestrator, reference *Tracker, cascade *Cascade, async bool, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		resize:    resize,
		reference: reference,
		cascade:   cascade,
		async:     async,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Route selects the handler for an event without running it.
func (d *Dispatcher) Route(ev *ChangeEvent) Route {
	route, _ := d.route(ev)
	return route
}

// route also returns the decoded asset for the resize and cascade routes.
func (d *Dispatcher) route(ev *ChangeEvent) (Route, *Asset) {
	if ev == nil {
		return RouteIgnored, nil
	}
	if ev.Object && ev.ObjectType() == ObjectTypeFile {
		switch ev.Method {
		case MethodUpdate:
			if asset, ok := d.resize.Triggered(ev); ok {
				return RouteResize, asset
			}
		case MethodDelete:
			if asset, ok := d.cascade.Triggered(ev); ok {
				return RouteCascade, asset
			}
		}
		return RouteIgnored, nil
	}
	if d.reference.Triggered(ev) {
		return RouteReference, nil
	}
	return RouteIgnored, nil
}

// Dispatch routes ev and runs its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *ChangeEvent) Route {
	route, asset := d.route(ev)
	eventsDispatchedTotal.WithLabelValues(string(route)).Inc()
	if route == RouteIgnored {
		return route
	}

	if !d.async {
		d.run(ctx, route, ev, asset)
		return route
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(context.WithoutCancel(ctx), route, ev, asset)
	}()
	return route
}

// Wait blocks until every asynchronously dispatched handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, route Route, ev *ChangeEvent, asset *Asset) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked", "route", route, "entity_id", ev.EntityID(), "panic", fmt.Sprint(r))
		}
	}()

	switch route {
	case RouteResize:
		// failures are logged by the orchestrator
		_ = d.resize.Handle(ctx, asset)
	case RouteCascade:
		d.cascade.Handle(ctx, asset)
	case RouteReference:
		if _, err := d.reference.Handle(ctx, ev); err != nil {
			d.logger.Debug("Reference tracking finished with errors", "entity_id", ev.EntityID(), "error", err)
		}
	}
}
