package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// GetMissingHandler lists missing-name records with near-match suggestions
func GetMissingHandler(c echo.Context) error {
	type getMissingParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type getMissingResponse struct {
		Message string                 `json:"message"`
		Missing []common.MissingEntity `json:"missing"`
	}

	params := new(getMissingParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getMissingResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getMissingResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	missing, err := orch.ListMissing(c.Request().Context(), params.Namespace)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getMissingResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getMissingResponse{
		Message: "OK",
		Missing: missing,
	})
}
