package guided

import "WidgetCS/impl/core"

type Core interface {
	StartGuidedSession(mode string) (*core.GuidedSession, error)
	GuidedSession(id string) (*core.GuidedSession, error)
	SelectGuidedOption(id, optionID string) (*core.GuidedSession, bool, error)
	GuidedBack(id string) (*core.GuidedSession, bool, error)
	ResetGuidedSession(id, mode string) (*core.GuidedSession, error)
	CloseGuidedSession(id string) error
}
