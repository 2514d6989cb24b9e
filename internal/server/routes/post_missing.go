package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/queue"
	"github.com/cartonhq/carton/internal/server/middleware"
)

// TriageMissingHandler queues a triage pass over the namespace's missing
// names. The worker applies the configured policy to each record
func TriageMissingHandler(c echo.Context) error {
	type triageMissingParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type triageMissingResponse struct {
		Message string `json:"message"`
	}

	params := new(triageMissingParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, triageMissingResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, triageMissingResponse{
			Message: "Invalid request params",
		})
	}

	msg := queue.TriageJobMsg{
		Message:   "Triage missing names",
		Namespace: params.Namespace,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, triageMissingResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.TriageQueue, msgBytes); err != nil {
		return c.JSON(http.StatusInternalServerError, triageMissingResponse{
			Message: "Failed to queue triage pass",
		})
	}

	return c.JSON(http.StatusAccepted, triageMissingResponse{
		Message: "Triage queued",
	})
}
