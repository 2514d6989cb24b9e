package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// RetractRelationshipHandler removes an edge and its inverse
func RetractRelationshipHandler(c echo.Context) error {
	type retractRelationshipParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type retractRelationshipBody struct {
		SourceID string `json:"source_id" validate:"required"`
		TargetID string `json:"target_id" validate:"required"`
		Kind     string `json:"kind" validate:"required"`
	}

	type retractRelationshipResponse struct {
		Message string `json:"message"`
	}

	params := new(retractRelationshipParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, retractRelationshipResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, retractRelationshipResponse{
			Message: "Invalid request params",
		})
	}

	data := new(retractRelationshipBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, retractRelationshipResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, retractRelationshipResponse{
			Message: "Invalid request body",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	err := orch.RetractRelationship(c.Request().Context(), params.Namespace, data.SourceID, data.TargetID, common.Kind(data.Kind))
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, retractRelationshipResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, retractRelationshipResponse{
		Message: "Relationship retracted successfully",
	})
}
