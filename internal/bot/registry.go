package bot

import (
	log "github.com/sirupsen/logrus"
)

// Registry maps handler names to handlers. Order of Enabled follows the
// requested names.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(name string, handler Handler) {
	if handler == nil {
		return
	}
	r.handlers[name] = handler
}

func (r *Registry) Enabled(names []string) []Handler {
	enabled := make([]Handler, 0, len(names))
	for _, name := range names {
		handler, ok := r.handlers[name]
		if !ok {
			log.Warnf("no registered handler: %s", name)
			continue
		}
		enabled = append(enabled, handler)
	}
	return enabled
}
