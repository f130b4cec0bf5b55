package flows

import (
	"WidgetCS/entity"
	"WidgetCS/impl/core"
)

type Core interface {
	GetFlows() ([]entity.Flow, error)
	CreateFlow(flow entity.Flow) (*core.FlowResult, error)
	UpdateFlow(id string, flow entity.Flow) (*core.FlowResult, error)
	DeleteFlow(id string) error
}
