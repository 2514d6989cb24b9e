package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/graphdb"
	"github.com/cartonhq/carton/pkg/projector"
)

// GetNeighborhoodHandler reads the subgraph around an entity from the
// projection. Depth defaults to 1 and is clamped server-side
func GetNeighborhoodHandler(c echo.Context) error {
	type getNeighborhoodParams struct {
		Namespace string `param:"ns" validate:"required"`
		ID        string `param:"id" validate:"required"`
		Depth     int    `query:"depth"`
	}

	type getNeighborhoodResponse struct {
		Message      string                `json:"message"`
		Neighborhood *graphdb.Neighborhood `json:"neighborhood,omitempty"`
	}

	params := new(getNeighborhoodParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getNeighborhoodResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getNeighborhoodResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	hood, err := orch.QueryNeighborhood(c.Request().Context(), params.Namespace, params.ID, params.Depth)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getNeighborhoodResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getNeighborhoodResponse{
		Message:      "OK",
		Neighborhood: hood,
	})
}

// GetDriftHandler compares the projection against canonical state without
// touching either
func GetDriftHandler(c echo.Context) error {
	type getDriftParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type getDriftResponse struct {
		Message string           `json:"message"`
		Drift   *projector.Drift `json:"drift,omitempty"`
	}

	params := new(getDriftParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDriftResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDriftResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	drift, err := orch.CheckDrift(c.Request().Context(), params.Namespace)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getDriftResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getDriftResponse{
		Message: "OK",
		Drift:   &drift,
	})
}
