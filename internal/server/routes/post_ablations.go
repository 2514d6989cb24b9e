package routes

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/queue"
	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/ablation"
)

// PlanAblationHandler computes and validates a removal cascade without
// mutating anything. The returned plan shows exactly what an execution
// would remove
func PlanAblationHandler(c echo.Context) error {
	type planAblationParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type planAblationBody struct {
		RootIDs []string `json:"root_ids" validate:"required,min=1"`
		Cascade bool     `json:"cascade"`
	}

	type planAblationResponse struct {
		Message string         `json:"message"`
		Plan    *ablation.Plan `json:"plan,omitempty"`
	}

	params := new(planAblationParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, planAblationResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, planAblationResponse{
			Message: "Invalid request params",
		})
	}

	data := new(planAblationBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, planAblationResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, planAblationResponse{
			Message: "Invalid request body",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	plan, err := orch.PlanAblation(c.Request().Context(), params.Namespace, data.RootIDs, data.Cascade)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, planAblationResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, planAblationResponse{
		Message: "Plan validated",
		Plan:    plan,
	})
}

// ExecuteAblationHandler queues a cascade removal. The worker plans fresh
// under the namespace lease; a previewed plan is never executed as-is
func ExecuteAblationHandler(c echo.Context) error {
	type executeAblationParams struct {
		Namespace string `param:"ns" validate:"required"`
	}

	type executeAblationBody struct {
		RootIDs []string `json:"root_ids" validate:"required,min=1"`
		Cascade bool     `json:"cascade"`
	}

	type executeAblationResponse struct {
		Message string `json:"message"`
	}

	params := new(executeAblationParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, executeAblationResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, executeAblationResponse{
			Message: "Invalid request params",
		})
	}

	data := new(executeAblationBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, executeAblationResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, executeAblationResponse{
			Message: "Invalid request body",
		})
	}

	msg := queue.AblateJobMsg{
		Message:   "Execute ablation",
		Namespace: params.Namespace,
		RootIDs:   data.RootIDs,
		Cascade:   data.Cascade,
	}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, executeAblationResponse{
			Message: "Internal server error",
		})
	}

	ch := c.(*middleware.AppContext).App.Queue
	if err := queue.PublishFIFO(ch, queue.AblateQueue, msgBytes); err != nil {
		return c.JSON(http.StatusInternalServerError, executeAblationResponse{
			Message: "Failed to queue ablation",
		})
	}

	return c.JSON(http.StatusAccepted, executeAblationResponse{
		Message: "Ablation queued",
	})
}
