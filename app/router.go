// Package app wires the HTTP routes the settings GUI talks to.
package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the HTTP router: capability export and job control.
func NewRouter() (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", Health)
	router.GET("/engine/capabilities", GetEngineCapabilities)
	router.POST("/analyze", StartAnalysis)
	router.GET("/jobs/:jobid", GetJobStatus)
	router.POST("/jobs/:jobid/stop", StopJob)

	return router, nil
}
