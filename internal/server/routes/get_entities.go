package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// GetEntitiesHandler lists the entities of a namespace
func GetEntitiesHandler(c echo.Context) error {
	type getEntitiesParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type getEntitiesResponse struct {
		Message  string          `json:"message"`
		Entities []common.Entity `json:"entities"`
	}

	params := new(getEntitiesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getEntitiesResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getEntitiesResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	entities, err := orch.ListEntities(c.Request().Context(), params.Namespace)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getEntitiesResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getEntitiesResponse{
		Message:  "OK",
		Entities: entities,
	})
}

// GetEntityHandler reads one entity by id
func GetEntityHandler(c echo.Context) error {
	type getEntityParams struct {
		Namespace string `param:"ns" validate:"required"`
		ID        string `param:"id" validate:"required"`
	}

	type getEntityResponse struct {
		Message string         `json:"message"`
		Entity  *common.Entity `json:"entity,omitempty"`
	}

	params := new(getEntityParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getEntityResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getEntityResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	entity, err := orch.GetEntity(c.Request().Context(), params.Namespace, params.ID)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getEntityResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getEntityResponse{
		Message: "OK",
		Entity:  entity,
	})
}
