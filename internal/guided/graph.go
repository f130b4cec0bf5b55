package guided

import (
	"fmt"
	"sort"
	"sync"

	"WidgetCS/entity"
)

// Graph holds the working set of guided flows and answers structural queries.
// It is safe for concurrent use; engines read it while the admin API reloads it.
type Graph struct {
	mu    sync.RWMutex
	flows map[string]entity.Flow
	names []string
}

func NewGraph() *Graph {
	return &Graph{flows: make(map[string]entity.Flow)}
}

// Load replaces the working set. On error the previous set is kept.
func (g *Graph) Load(flows []entity.Flow) error {
	byName := make(map[string]entity.Flow, len(flows))
	names := make([]string, 0, len(flows))
	for _, f := range flows {
		if _, ok := byName[f.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateName, f.Name)
		}
		f.Options = sortedOptions(f.Options)
		byName[f.Name] = f
		names = append(names, f.Name)
	}
	if _, ok := byName[entity.MainFlow]; !ok {
		return ErrMissingMain
	}

	g.mu.Lock()
	g.flows = byName
	g.names = names
	g.mu.Unlock()
	return nil
}

// Flow returns a copy of the named flow.
func (g *Graph) Flow(name string) (entity.Flow, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.flows[name]
	if !ok {
		return entity.Flow{}, false
	}
	f.Options = append([]entity.FlowOption(nil), f.Options...)
	return f, true
}

// Options returns the display-ordered options of a flow. Unknown or empty names
// yield no options, which the engine treats as a terminal state.
func (g *Graph) Options(name string) []entity.FlowOption {
	f, ok := g.Flow(name)
	if !ok {
		return nil
	}
	return f.Options
}

// Flows returns the working set in load order.
func (g *Graph) Flows() []entity.Flow {
	g.mu.RLock()
	defer g.mu.RUnlock()
	list := make([]entity.Flow, 0, len(g.names))
	for _, name := range g.names {
		list = append(list, g.flows[name])
	}
	return list
}

func sortedOptions(options []entity.FlowOption) []entity.FlowOption {
	sorted := append([]entity.FlowOption(nil), options...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// HasCycle walks next_flow edges depth first starting at candidate and reports
// whether a flow name repeats on the current path. The candidate replaces its
// stored version, matched by id or name. Targets that do not exist are leaves.
func HasCycle(candidate entity.Flow, all []entity.Flow) bool {
	byName := make(map[string]entity.Flow, len(all)+1)
	for _, f := range all {
		if candidate.ID != "" && f.ID == candidate.ID {
			continue
		}
		byName[f.Name] = f
	}
	byName[candidate.Name] = candidate

	onPath := make(map[string]bool)
	done := make(map[string]bool)

	var visit func(name string) bool
	visit = func(name string) bool {
		if onPath[name] {
			return true
		}
		if done[name] {
			return false
		}
		f, ok := byName[name]
		if !ok {
			return false
		}
		onPath[name] = true
		for _, o := range f.Options {
			if o.NextFlow != "" && visit(o.NextFlow) {
				return true
			}
		}
		onPath[name] = false
		done[name] = true
		return false
	}

	return visit(candidate.Name)
}

// StructuralDiff reports whether an edit changed the option count or the set of
// distinct next_flow targets. It only drives a warning, never blocks a save.
func StructuralDiff(before, after entity.Flow) bool {
	if len(before.Options) != len(after.Options) {
		return true
	}
	a, b := targets(before), targets(after)
	if len(a) != len(b) {
		return true
	}
	for t := range a {
		if !b[t] {
			return true
		}
	}
	return false
}

func targets(f entity.Flow) map[string]bool {
	set := make(map[string]bool)
	for _, o := range f.Options {
		if o.NextFlow != "" {
			set[o.NextFlow] = true
		}
	}
	return set
}

// DefaultMainFlow is created when the store holds no main flow.
func DefaultMainFlow() entity.Flow {
	return entity.Flow{
		Name: entity.MainFlow,
		Options: []entity.FlowOption{
			{
				ID:    "main-products",
				Text:  "Show me your products",
				Icon:  "🛍️",
				Order: 0,
				BotResponse: &entity.BotResponse{
					Text: "Here is an overview of what we offer.",
				},
			},
			{
				ID:    "main-human",
				Text:  "Talk to a person",
				Icon:  "💬",
				Order: 1,
				BotResponse: &entity.BotResponse{
					Text: "Let me connect you with our team.",
				},
			},
		},
	}
}
