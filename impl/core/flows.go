package core

import (
	"WidgetCS/entity"
	"WidgetCS/internal/database"
	"WidgetCS/internal/guided"
	"WidgetCS/internal/lib/sl"
	"errors"
	"fmt"
	"log/slog"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrMainFlowDelete = errors.New("main flow cannot be deleted")
)

const structuralWarning = "Options or next flow targets changed; visitors in an active guided chat may see a different path."

// FlowResult is a saved flow with an optional non-blocking warning.
type FlowResult struct {
	Flow    *entity.Flow `json:"flow"`
	Warning string       `json:"warning,omitempty"`
}

// GetFlows returns every flow, synthesizing and storing main when missing.
func (c *Core) GetFlows() ([]entity.Flow, error) {
	flows, err := c.repo.GetFlows()
	if err != nil {
		return nil, fmt.Errorf("get flows: %w", err)
	}

	if !hasFlow(flows, entity.MainFlow) {
		created, err := c.repo.CreateFlow(guided.DefaultMainFlow())
		if err != nil {
			return nil, fmt.Errorf("create default main flow: %w", err)
		}
		c.log.Info("default main flow created", slog.String("id", created.ID))
		flows = append(flows, *created)
	}

	c.reloadGraph(flows)
	return flows, nil
}

func (c *Core) CreateFlow(flow entity.Flow) (*FlowResult, error) {
	flows, err := c.checkFlow(flow)
	if err != nil {
		return nil, err
	}
	if hasFlow(flows, flow.Name) {
		return nil, fmt.Errorf("%w: %s", guided.ErrDuplicateName, flow.Name)
	}

	created, err := c.repo.CreateFlow(flow)
	if err != nil {
		return nil, c.storeError("create flow", err)
	}
	c.log.With(
		slog.String("id", created.ID),
		slog.String("name", created.Name),
	).Info("flow created")

	c.refreshGraph()
	return &FlowResult{Flow: created}, nil
}

func (c *Core) UpdateFlow(id string, flow entity.Flow) (*FlowResult, error) {
	existing, err := c.repo.GetFlow(id)
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if existing.Name == entity.MainFlow && flow.Name != entity.MainFlow {
		return nil, fmt.Errorf("%w: main flow cannot be renamed", guided.ErrValidation)
	}

	flow.ID = id
	if _, err = c.checkFlow(flow); err != nil {
		return nil, err
	}

	ok, err := c.repo.UpdateFlow(flow)
	if err != nil {
		return nil, c.storeError("update flow", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	result := &FlowResult{Flow: &flow}
	if guided.StructuralDiff(*existing, flow) {
		result.Warning = structuralWarning
	}
	if updated, err := c.repo.GetFlow(id); err == nil && updated != nil {
		result.Flow = updated
	}
	c.log.With(
		slog.String("id", id),
		slog.String("name", flow.Name),
		slog.Bool("structural", result.Warning != ""),
	).Info("flow updated")

	c.refreshGraph()
	return result, nil
}

func (c *Core) DeleteFlow(id string) error {
	existing, err := c.repo.GetFlow(id)
	if err != nil {
		return fmt.Errorf("get flow: %w", err)
	}
	if existing == nil {
		return ErrNotFound
	}
	if existing.Name == entity.MainFlow {
		return ErrMainFlowDelete
	}

	ok, err := c.repo.DeleteFlow(id)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	c.log.Info("flow deleted", slog.String("id", id), slog.String("name", existing.Name))

	c.refreshGraph()
	return nil
}

// checkFlow validates a flow about to be written and returns the stored flows.
func (c *Core) checkFlow(flow entity.Flow) ([]entity.Flow, error) {
	if err := c.validate.Struct(flow); err != nil {
		return nil, fmt.Errorf("%w: %v", guided.ErrValidation, err)
	}
	seen := make(map[string]bool, len(flow.Options))
	for _, o := range flow.Options {
		if seen[o.ID] {
			return nil, fmt.Errorf("%w: duplicate option id %s", guided.ErrValidation, o.ID)
		}
		seen[o.ID] = true
	}

	flows, err := c.repo.GetFlows()
	if err != nil {
		return nil, fmt.Errorf("get flows: %w", err)
	}
	for _, f := range flows {
		if f.Name == flow.Name && f.ID != flow.ID && flow.ID != "" {
			return nil, fmt.Errorf("%w: %s", guided.ErrDuplicateName, flow.Name)
		}
	}
	if guided.HasCycle(flow, flows) {
		return nil, fmt.Errorf("%w: starting at %s", guided.ErrCycle, flow.Name)
	}
	return flows, nil
}

func (c *Core) storeError(op string, err error) error {
	if errors.Is(err, repository.ErrDuplicateFlow) {
		return fmt.Errorf("%w: %v", guided.ErrDuplicateName, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *Core) refreshGraph() {
	flows, err := c.repo.GetFlows()
	if err != nil {
		c.log.Error("reload flows", sl.Err(err))
		return
	}
	c.reloadGraph(flows)
}

// reloadGraph swaps the flows seen by guided sessions; on invalid data the
// previous graph stays in place.
func (c *Core) reloadGraph(flows []entity.Flow) {
	if err := c.graph.Load(flows); err != nil {
		c.log.Warn("flow graph not reloaded", sl.Err(err))
	}
}

func hasFlow(flows []entity.Flow, name string) bool {
	for _, f := range flows {
		if f.Name == name {
			return true
		}
	}
	return false
}
