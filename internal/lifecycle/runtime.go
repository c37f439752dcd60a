package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type namedComponent struct {
	Component
	name string
}

func (c namedComponent) Name() string { return c.name }

// Named attaches a name used in logs and errors.
func Named(name string, component Component) Component {
	if component == nil {
		return nil
	}
	return namedComponent{Component: component, name: name}
}

func nameOf(component Component) string {
	if n, ok := component.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", component)
}

// Runtime starts components in registration order and stops the started
// ones in reverse.
type Runtime struct {
	mu         sync.Mutex
	components []Component
	started    []Component
}

func NewRuntime(components ...Component) *Runtime {
	return &Runtime{components: components}
}

func (r *Runtime) getLogEntry() *log.Entry {
	return log.WithField("object", "Runtime")
}

func (r *Runtime) Register(component Component) {
	if component == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = append(r.components, component)
}

func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, component := range r.components {
		if component == nil {
			continue
		}
		name := nameOf(component)
		if err := component.Start(ctx); err != nil {
			_ = stopComponents(ctx, r.started)
			r.started = nil
			return fmt.Errorf("start component %s: %w", name, err)
		}
		r.getLogEntry().WithField("component", name).Debug("started")
		r.started = append(r.started, component)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := stopComponents(ctx, r.started)
	r.started = nil
	return err
}

func stopComponents(ctx context.Context, components []Component) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		name := nameOf(component)
		if err := component.Stop(ctx); err != nil {
			log.WithField("object", "Runtime").WithField("component", name).WithField("error", err.Error()).Warn("stop failed")
			stopErr = errors.Join(stopErr, fmt.Errorf("stop component %s: %w", name, err))
		}
	}
	return stopErr
}
