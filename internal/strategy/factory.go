package strategy

import (
	"sort"
	"sync"

	"quant-backtester/internal/model"
)

// AgentInfo describes a registered agent for listings.
type AgentInfo struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Defaults    model.Params     `json:"defaults"`
	Optimizable bool             `json:"optimizable"`
	Ranges      map[string][]any `json:"ranges,omitempty"`
}

// Registry maps agent identifiers to implementations.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// NewDefaultRegistry holds the bundled agents.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		NewMACrossAgent(),
		NewRSIAgent(),
		NewBreakoutAgent(),
	)
}

func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID()] = a
}

// Lookup never fails: unknown identifiers resolve to a HOLD-only agent.
func (r *Registry) Lookup(id string) Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return a
	}
	return NewHoldAgent(id)
}

func (r *Registry) Supported(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

func (r *Registry) List() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		info := AgentInfo{ID: a.ID(), Name: a.Name(), Defaults: a.Defaults()}
		if o, ok := a.(Optimizable); ok {
			info.Optimizable = true
			info.Ranges = o.ParameterRanges()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
