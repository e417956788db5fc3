package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
	"github.com/ppodhajski/RenderingResourceManager/internal/policy"
)

type adminHandler struct {
	policies policy.Store
}

// suspend handles PUT /admin/suspend: session creation is disabled until a
// matching resume. Idempotent.
func (h *adminHandler) suspend(c *gin.Context) {
	pol, err := h.policies.Suspend(c.Request.Context())
	if err != nil {
		apierr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, pol)
}

func (h *adminHandler) resume(c *gin.Context) {
	pol, err := h.policies.Resume(c.Request.Context())
	if err != nil {
		apierr.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, pol)
}
