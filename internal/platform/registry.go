package platform

import (
	"sort"

	"postpilot/internal/compliance"
	logx "postpilot/pkg/logx"
)

// Registry holds exactly one adapter per configured platform.
//
// Construction fails loudly on any invalid adapter config; a registry with a
// half-built adapter set must not exist.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(cfgs []Config, checker *compliance.Checker, log logx.Logger) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(cfgs))}
	for _, cfg := range cfgs {
		a, err := newAdapter(cfg, checker, log)
		if err != nil {
			return nil, err
		}
		r.adapters[cfg.Platform] = a
	}
	return r, nil
}

// Get returns the platform's adapter. Callers must treat a missing adapter
// as a dispatch failure, not construct one lazily.
func (r *Registry) Get(platform string) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
