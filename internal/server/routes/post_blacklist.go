package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
)

// AddBlacklistHandler suppresses a name from missing tracking
func AddBlacklistHandler(c echo.Context) error {
	type addBlacklistParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type addBlacklistBody struct {
		Name   string `json:"name" validate:"required"`
		Reason string `json:"reason"`
	}

	type addBlacklistResponse struct {
		Message string `json:"message"`
	}

	params := new(addBlacklistParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, addBlacklistResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, addBlacklistResponse{
			Message: "Invalid request params",
		})
	}

	data := new(addBlacklistBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, addBlacklistResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, addBlacklistResponse{
			Message: "Invalid request body",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	if err := orch.Blacklist(c.Request().Context(), params.Namespace, data.Name, data.Reason); err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, addBlacklistResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, addBlacklistResponse{
		Message: "Name blacklisted successfully",
	})
}
