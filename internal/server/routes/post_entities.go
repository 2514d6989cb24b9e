package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// UpsertEntityHandler creates or updates an entity from its name and
// description. Linking and projection happen synchronously before the
// response
func UpsertEntityHandler(c echo.Context) error {
	type upsertEntityParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type upsertEntityBody struct {
		Name        string `json:"name" validate:"required"`
		Description string `json:"description" validate:"required"`
	}

	type upsertEntityResponse struct {
		Message string         `json:"message"`
		Entity  *common.Entity `json:"entity,omitempty"`
	}

	params := new(upsertEntityParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, upsertEntityResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, upsertEntityResponse{
			Message: "Invalid request params",
		})
	}

	data := new(upsertEntityBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, upsertEntityResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, upsertEntityResponse{
			Message: "Invalid request body",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	entity, err := orch.UpsertEntity(c.Request().Context(), params.Namespace, data.Name, data.Description)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, upsertEntityResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, upsertEntityResponse{
		Message: "Entity upserted successfully",
		Entity:  entity,
	})
}
