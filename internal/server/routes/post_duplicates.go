package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/queue"
	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// RunDedupeHandler queues a duplicate-detection pass over the namespace
func RunDedupeHandler(c echo.Context) error {
	type runDedupeParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type runDedupeResponse struct {
		Message string `json:"message"`
	}

	params := new(runDedupeParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, runDedupeResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, runDedupeResponse{
			Message: "Invalid request params",
		})
	}

	msg := queue.DedupeJobMsg{
		Message:   "Find duplicates",
		Namespace: params.Namespace,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, runDedupeResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.DedupeQueue, msgBytes); err != nil {
		return c.JSON(http.StatusInternalServerError, runDedupeResponse{
			Message: "Failed to queue duplicate pass",
		})
	}

	return c.JSON(http.StatusAccepted, runDedupeResponse{
		Message: "Duplicate pass queued",
	})
}

// ResolvePairHandler marks a pending pair MERGED or DISMISSED. Merging only
// resolves the pair; removing the losing entity goes through ablation
func ResolvePairHandler(c echo.Context) error {
	type resolvePairParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type resolvePairBody struct {
		EntityA string `json:"entity_a" validate:"required"`
		EntityB string `json:"entity_b" validate:"required"`
		Status  string `json:"status" validate:"required,oneof=MERGED DISMISSED"`
	}

	type resolvePairResponse struct {
		Message string `json:"message"`
	}

	params := new(resolvePairParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, resolvePairResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, resolvePairResponse{
			Message: "Invalid request params",
		})
	}

	data := new(resolvePairBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolvePairResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, resolvePairResponse{
			Message: "Invalid request body",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	err := orch.ResolvePair(c.Request().Context(), params.Namespace, data.EntityA, data.EntityB, common.PairStatus(data.Status))
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, resolvePairResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, resolvePairResponse{
		Message: "Pair resolved successfully",
	})
}
