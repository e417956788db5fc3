// Package transport implements the REST surface over Gin, wiring HTTP
// requests onto the Session Engine, Config Store and Global Policy Store.
package transport

import (
	"github.com/gin-gonic/gin"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
	"github.com/ppodhajski/RenderingResourceManager/internal/config"
	"github.com/ppodhajski/RenderingResourceManager/internal/engine"
	"github.com/ppodhajski/RenderingResourceManager/internal/policy"
)

// NewRouter builds the Gin engine serving the full REST surface.
func NewRouter(eng *engine.Engine, configs config.Store, policies policy.Store) *gin.Engine {
	router := gin.New()
	router.Use(apierr.Recovery())
	router.Use(gin.Logger())
	router.Use(apierr.ErrorHandler())

	sessions := &sessionHandler{engine: eng}
	configsH := &configHandler{store: configs}
	admin := &adminHandler{policies: policies}

	router.POST("/session/", sessions.create)
	router.GET("/session/", sessions.status)
	router.DELETE("/session/", sessions.delete)
	router.PUT("/session/keep_alive", sessions.keepAlive)
	router.GET("/sessions/", sessions.list)

	router.PUT("/admin/suspend", admin.suspend)
	router.PUT("/admin/resume", admin.resume)

	router.POST("/config/", configsH.create)
	router.PUT("/config/", configsH.update)
	router.DELETE("/config/:id", configsH.delete)
	router.GET("/config/", configsH.list)

	return router
}
