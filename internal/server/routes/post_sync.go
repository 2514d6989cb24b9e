package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/queue"
	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
)

// SyncNamespaceHandler queues a full re-scan of the namespace. The job runs
// on the worker because a large namespace can take minutes
func SyncNamespaceHandler(c echo.Context) error {
	type syncNamespaceParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type syncNamespaceResponse struct {
		Message string `json:"message"`
	}

	params := new(syncNamespaceParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, syncNamespaceResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, syncNamespaceResponse{
			Message: "Invalid request params",
		})
	}

	msg := queue.SyncJobMsg{
		Message:   "Sync namespace",
		Namespace: params.Namespace,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, syncNamespaceResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.SyncQueue, msgBytes); err != nil {
		return c.JSON(http.StatusInternalServerError, syncNamespaceResponse{
			Message: "Failed to queue sync job",
		})
	}

	return c.JSON(http.StatusAccepted, syncNamespaceResponse{
		Message: "Sync queued",
	})
}

// SyncEntityHandler re-scans a single entity synchronously. One entity is
// cheap enough to run inline; full-namespace passes go through the queue.
func SyncEntityHandler(c echo.Context) error {
	type syncEntityParams struct {
		Namespace string `param:"ns" validate:"required"`
		ID        string `param:"id" validate:"required"`
	}

	type syncEntityResponse struct {
		Message         string `json:"message"`
		Added           int    `json:"added,omitempty"`
		Retracted       int    `json:"retracted,omitempty"`
		MissingRecorded int    `json:"missing_recorded,omitempty"`
	}

	params := new(syncEntityParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, syncEntityResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, syncEntityResponse{
			Message: "Invalid request params",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	sum, err := orch.SyncEntity(c.Request().Context(), params.Namespace, params.ID)
	if err != nil {
		status, message := util.StatusForError(err)
		return c.JSON(status, syncEntityResponse{Message: message})
	}

	return c.JSON(http.StatusOK, syncEntityResponse{
		Message:         "Entity synced",
		Added:           sum.Added,
		Retracted:       sum.Retracted,
		MissingRecorded: sum.MissingRecorded,
	})
}

// RebuildProjectionHandler queues an atomic projection rebuild
func RebuildProjectionHandler(c echo.Context) error {
	type rebuildParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type rebuildResponse struct {
		Message string `json:"message"`
	}

	params := new(rebuildParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, rebuildResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, rebuildResponse{
			Message: "Invalid request params",
		})
	}

	msg := queue.RebuildJobMsg{
		Message:   "Rebuild projection",
		Namespace: params.Namespace,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.RebuildQueue, msgBytes); err != nil {
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Failed to queue rebuild job",
		})
	}

	return c.JSON(http.StatusAccepted, rebuildResponse{
		Message: "Rebuild queued",
	})
}
