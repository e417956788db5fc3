package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
	"github.com/ppodhajski/RenderingResourceManager/internal/config"
)

type configHandler struct {
	store config.Store
}

func (h *configHandler) create(c *gin.Context) {
	var cfg config.RendererConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierr.HandleError(c, apierr.InvalidArgument(err.Error()))
		return
	}

	if err := h.store.Create(c.Request.Context(), cfg); err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

func (h *configHandler) update(c *gin.Context) {
	var cfg config.RendererConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		apierr.HandleError(c, apierr.InvalidArgument(err.Error()))
		return
	}

	if err := h.store.Update(c.Request.Context(), cfg); err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (h *configHandler) delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "status": "deleted"})
}

func (h *configHandler) list(c *gin.Context) {
	configs, err := h.store.List(c.Request.Context())
	if err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, configs)
}
