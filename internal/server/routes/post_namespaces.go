package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// CreateNamespaceHandler registers a namespace; creating an existing one is
// a no-op
func CreateNamespaceHandler(c echo.Context) error {
	type createNamespaceBody struct {
		Name string `json:"name" validate:"required"`
	}

	type createNamespaceResponse struct {
		Message   string            `json:"message"`
		Namespace *common.Namespace `json:"namespace,omitempty"`
	}

	data := new(createNamespaceBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createNamespaceResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createNamespaceResponse{
			Message: "Invalid request body",
		})
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	ns, err := orch.EnsureNamespace(c.Request().Context(), data.Name)
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, createNamespaceResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, createNamespaceResponse{
		Message:   "Namespace ready",
		Namespace: &ns,
	})
}
