package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// GetBlacklistHandler lists the suppressed names of a namespace
func GetBlacklistHandler(c echo.Context) error {
	type getBlacklistParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type getBlacklistResponse struct {
		Message string                  `json:"message"`
		Entries []common.BlacklistEntry `json:"entries"`
	}

	params := new(getBlacklistParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getBlacklistResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getBlacklistResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	entries, err := orch.ListBlacklist(c.Request().Context(), params.Namespace)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getBlacklistResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getBlacklistResponse{
		Message: "OK",
		Entries: entries,
	})
}
