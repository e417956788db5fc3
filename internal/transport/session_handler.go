package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
	"github.com/ppodhajski/RenderingResourceManager/internal/engine"
)

type sessionHandler struct {
	engine *engine.Engine
}

type createSessionRequest struct {
	Owner           string `json:"owner" binding:"required"`
	ConfigurationID string `json:"configuration_id" binding:"required"`
	ExtraParams     string `json:"extra_params"`
	ExtraEnv        string `json:"extra_env"`
}

// create handles POST /session/: create_session followed by schedule, so the
// two-step Engine API still presents as a single request to the client.
func (h *sessionHandler) create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.HandleError(c, apierr.InvalidArgument(err.Error()))
		return
	}

	session, err := h.engine.CreateSession(c.Request.Context(), req.Owner, req.ConfigurationID)
	if err != nil {
		apierr.HandleError(c, err)
		return
	}

	scheduled, err := h.engine.Schedule(c.Request.Context(), session.ID, req.ExtraParams, req.ExtraEnv)
	if err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, scheduled)
}

// status handles GET /session/?session_id=…. A non-nil Unavailable error
// from QueryStatus is non-terminal: the last-persisted status is still
// returned, with 503 as a hint rather than an error body.
func (h *sessionHandler) status(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		apierr.HandleError(c, apierr.InvalidArgument("session_id is required"))
		return
	}

	resp, err := h.engine.QueryStatus(c.Request.Context(), sessionID)
	if err != nil {
		if appErr := apierr.As(err); appErr.Code == apierr.CodeUnavailable {
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *sessionHandler) delete(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		apierr.HandleError(c, apierr.InvalidArgument("session_id is required"))
		return
	}

	if err := h.engine.DeleteSession(c.Request.Context(), sessionID); err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "status": "deleted"})
}

func (h *sessionHandler) keepAlive(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		apierr.HandleError(c, apierr.InvalidArgument("session_id is required"))
		return
	}

	session, err := h.engine.KeepAlive(c.Request.Context(), sessionID)
	if err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (h *sessionHandler) list(c *gin.Context) {
	sessions, err := h.engine.ListSessions(c.Request.Context())
	if err != nil {
		apierr.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessions)
}
