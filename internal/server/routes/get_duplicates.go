package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cartonhq/carton/internal/server/middleware"
	"github.com/cartonhq/carton/internal/server/util"
	"github.com/cartonhq/carton/pkg/common"
)

// GetDuplicatesHandler lists duplicate pairs, filtered by status
// (PENDING by default)
func GetDuplicatesHandler(c echo.Context) error {
	type getDuplicatesParams struct {
		Namespace string `param:"ns" validate:"required"`
		Status    string `query:"status"`
	}

	type getDuplicatesResponse struct {
		Message string                 `json:"message"`
		Pairs   []common.DuplicatePair `json:"pairs"`
	}

	params := new(getDuplicatesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDuplicatesResponse{
			Message: "Invalid request params",
		})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, getDuplicatesResponse{
			Message: "Invalid request params",
		})
	}

	status := common.PairStatus(params.Status)
	if params.Status == "" {
		status = common.PairPending
	}

	orch := c.(*middleware.AppContext).App.Orchestrator
	pairs, err := orch.ListPairs(c.Request().Context(), params.Namespace, status)
	if err != nil {
		httpStatus, msg := util.StatusForError(err)
		return c.JSON(httpStatus, getDuplicatesResponse{Message: msg})
	}

	return c.JSON(http.StatusOK, getDuplicatesResponse{
		Message: "OK",
		Pairs:   pairs,
	})
}
