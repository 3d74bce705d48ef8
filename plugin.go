package message

import (
	"context"
	"fmt"
	"log/slog"
)

// Plugin extends the service with custom behavior. Init is called
// during Connect, Close during shutdown in reverse order.
//
// A plugin that also implements ComposeHook or NotifyHook is invoked at
// the corresponding pipeline points.
type Plugin interface {
	// Name identifies the plugin in logs and errors.
	Name() string

	// Init is called during service Connect.
	Init(ctx context.Context) error

	// Close is called during service shutdown.
	Close(ctx context.Context) error
}

// ComposeHook intercepts the compose pipeline.
type ComposeHook interface {
	// BeforeCompose runs after validation and authorization, before the
	// record is persisted. Returning an error aborts the compose. The
	// request may be mutated, e.g. to rewrite the body.
	BeforeCompose(ctx context.Context, req *ComposeRequest) error

	// AfterCompose runs after the record is persisted and the
	// post-delivery steps finished. Returning an error surfaces to the
	// caller but does not undo the send.
	AfterCompose(ctx context.Context, msg Message) error
}

// NotifyHook intercepts notification dispatch.
type NotifyHook interface {
	// BeforeNotify runs before a notification is delivered or queued.
	// Returning an error suppresses this notification; the send itself
	// is unaffected.
	BeforeNotify(ctx context.Context, n *Notification) error

	// AfterNotify runs after a delivery attempt with its outcome.
	AfterNotify(ctx context.Context, n *Notification, err error)
}

// PluginError wraps an error from a named plugin.
type PluginError struct {
	Plugin string
	Op     string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("message: plugin %s: %s: %v", e.Plugin, e.Op, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// pluginRegistry tracks registered plugins and dispatches hooks.
type pluginRegistry struct {
	plugins     []Plugin
	initialized []Plugin
	logger      *slog.Logger
}

func newPluginRegistry(logger *slog.Logger) *pluginRegistry {
	return &pluginRegistry{logger: logger}
}

func (r *pluginRegistry) register(p Plugin) {
	r.plugins = append(r.plugins, p)
}

// initAll initializes plugins in registration order. On failure the
// already-initialized plugins are closed in reverse order.
func (r *pluginRegistry) initAll(ctx context.Context) error {
	for _, p := range r.plugins {
		if err := p.Init(ctx); err != nil {
			initErr := &PluginError{Plugin: p.Name(), Op: "init", Err: err}
			for i := len(r.initialized) - 1; i >= 0; i-- {
				if closeErr := r.initialized[i].Close(ctx); closeErr != nil {
					r.logger.Error("plugin close during init rollback failed",
						"plugin", r.initialized[i].Name(), "error", closeErr)
				}
			}
			r.initialized = nil
			return initErr
		}
		r.initialized = append(r.initialized, p)
	}
	return nil
}

// closeAll closes initialized plugins in reverse order, collecting the
// first error.
func (r *pluginRegistry) closeAll(ctx context.Context) error {
	var firstErr error
	for i := len(r.initialized) - 1; i >= 0; i-- {
		p := r.initialized[i]
		if err := p.Close(ctx); err != nil && firstErr == nil {
			firstErr = &PluginError{Plugin: p.Name(), Op: "close", Err: err}
		}
	}
	r.initialized = nil
	return firstErr
}

func (r *pluginRegistry) beforeCompose(ctx context.Context, req *ComposeRequest) error {
	for _, p := range r.plugins {
		hook, ok := p.(ComposeHook)
		if !ok {
			continue
		}
		if err := hook.BeforeCompose(ctx, req); err != nil {
			return &PluginError{Plugin: p.Name(), Op: "before compose", Err: err}
		}
	}
	return nil
}

func (r *pluginRegistry) afterCompose(ctx context.Context, msg Message) error {
	for _, p := range r.plugins {
		hook, ok := p.(ComposeHook)
		if !ok {
			continue
		}
		if err := hook.AfterCompose(ctx, msg); err != nil {
			return &PluginError{Plugin: p.Name(), Op: "after compose", Err: err}
		}
	}
	return nil
}

func (r *pluginRegistry) beforeNotify(ctx context.Context, n *Notification) error {
	for _, p := range r.plugins {
		hook, ok := p.(NotifyHook)
		if !ok {
			continue
		}
		if err := hook.BeforeNotify(ctx, n); err != nil {
			return &PluginError{Plugin: p.Name(), Op: "before notify", Err: err}
		}
	}
	return nil
}

func (r *pluginRegistry) afterNotify(ctx context.Context, n *Notification, notifyErr error) {
	for _, p := range r.plugins {
		if hook, ok := p.(NotifyHook); ok {
			hook.AfterNotify(ctx, n, notifyErr)
		}
	}
}
