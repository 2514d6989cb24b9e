package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
)

// RemoveBlacklistHandler lifts a suppression. The name becomes trackable
// again on the next scan
func RemoveBlacklistHandler(c echo.Context) error {
	type removeBlacklistParams struct {
		Namespace string `param:"ns" validate:"required"`
		Name      string `param:"name" validate:"required"`
	}

	type removeBlacklistResponse struct {
		Message string `json:"message"`
	}

	params := new(removeBlacklistParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, removeBlacklistResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, removeBlacklistResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	if err := orch.Unblacklist(c.Request().Context(), params.Namespace, params.Name); err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, removeBlacklistResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, removeBlacklistResponse{
		Message: "Name removed from blacklist",
	})
}
