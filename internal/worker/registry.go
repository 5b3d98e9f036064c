package worker

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/property-research/internal/model"
)

// Registry maps worker names to their implementations.
type Registry struct {
	workers map[string]Worker
	order   []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
	}
}

// Register adds a worker to the registry. Names must be unique.
func (r *Registry) Register(w Worker) error {
	name := w.Name()
	if name == "" {
		return eris.New("worker: register: empty name")
	}
	if _, ok := r.workers[name]; ok {
		return eris.Errorf("worker: register: duplicate worker %q", name)
	}
	r.workers[name] = w
	r.order = append(r.order, name)
	return nil
}

// Get returns a worker by name.
func (r *Registry) Get(name string) (Worker, error) {
	w, ok := r.workers[name]
	if !ok {
		return nil, eris.Wrapf(model.ErrUnknownWorker, "worker: %q", name)
	}
	return w, nil
}

// Select returns the workers a job dispatches: every Standard worker, plus
// every Extended worker when extended is true. If names is non-empty only
// those named workers are returned, still subject to the set filter.
func (r *Registry) Select(extended bool, names ...string) ([]Worker, error) {
	if len(names) > 0 {
		var result []Worker
		for _, name := range names {
			w, err := r.Get(name)
			if err != nil {
				return nil, err
			}
			if w.Set() == Extended && !extended {
				continue
			}
			result = append(result, w)
		}
		return result, nil
	}

	var result []Worker
	for _, w := range r.All() {
		if w.Set() == Extended && !extended {
			continue
		}
		result = append(result, w)
	}
	return result, nil
}

// ByCategory returns all workers in the given category, in registration order.
func (r *Registry) ByCategory(cat model.Category) []Worker {
	var result []Worker
	for _, name := range r.order {
		if r.workers[name].Category() == cat {
			result = append(result, r.workers[name])
		}
	}
	return result
}

// All returns all workers in registration order.
func (r *Registry) All() []Worker {
	result := make([]Worker, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.workers[name])
	}
	return result
}

// Names returns all registered worker names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Critical returns the names of critical workers, in registration order.
func (r *Registry) Critical() []string {
	var out []string
	for _, name := range r.order {
		if r.workers[name].Critical() {
			out = append(out, name)
		}
	}
	return out
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	return len(r.order)
}
