package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// GetRelationshipsHandler lists the edges of a namespace
func GetRelationshipsHandler(c echo.Context) error {
	type getRelationshipsParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type getRelationshipsResponse struct {
		Message       string                `json:"message"`
		Relationships []common.Relationship `json:"relationships"`
	}

	params := new(getRelationshipsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRelationshipsResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getRelationshipsResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	rels, err := orch.ListRelationships(c.Request().Context(), params.Namespace)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getRelationshipsResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getRelationshipsResponse{
		Message:       "OK",
		Relationships: rels,
	})
}
