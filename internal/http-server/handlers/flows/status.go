package flows

import (
	"WidgetCS/impl/core"
	"WidgetCS/internal/guided"
	"errors"
	"net/http"
)

func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrMainFlowDelete), errors.Is(err, guided.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, guided.ErrCycle):
		return http.StatusUnprocessableEntity
	case errors.Is(err, guided.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
