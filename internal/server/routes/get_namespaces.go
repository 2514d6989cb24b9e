package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// GetNamespacesHandler lists every registered namespace
func GetNamespacesHandler(c echo.Context) error {
	type getNamespacesResponse struct {
		Message    string             `json:"message"`
		Namespaces []common.Namespace `json:"namespaces"`
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	namespaces, err := orch.ListNamespaces(c.Request().Context())
	if err != nil {
		status, msg := util.StatusForError(err)
		return c.JSON(status, getNamespacesResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getNamespacesResponse{
		Message:    "OK",
		Namespaces: namespaces,
	})
}
