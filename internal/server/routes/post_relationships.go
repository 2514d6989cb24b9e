package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// AssertRelationshipHandler records a manual edge between two entities. The
// inverse edge is written in the same operation
func AssertRelationshipHandler(c echo.Context) error {
	type assertRelationshipParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type assertRelationshipBody struct {
		SourceID string `json:"source_id" validate:"required"`
		TargetID string `json:"target_id" validate:"required"`
		Kind     string `json:"kind" validate:"required"`
	}

	type assertRelationshipResponse struct {
		Message string `json:"message"`
	}

	params := new(assertRelationshipParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, assertRelationshipResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, assertRelationshipResponse{
			Message: "Invalid request params",
		})
	}

	data := new(assertRelationshipBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, assertRelationshipResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, assertRelationshipResponse{
			Message: "Invalid request body",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	err := orch.AssertRelationship(c.Request().Context(), params.Namespace, data.SourceID, data.TargetID, common.Kind(data.Kind))
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, assertRelationshipResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, assertRelationshipResponse{
		Message: "Relationship asserted successfully",
	})
}
