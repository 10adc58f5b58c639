package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// API holds dependencies for the HTTP handlers
type API struct {
	engine *Engine
}

// NewAPI creates a new API handler structure
func NewAPI(engine *Engine) *API {
	return &API{engine: engine}
}

// SetupRoutes defines all routes of the labeling service
func SetupRoutes(router *gin.Engine, engine *Engine) {
	api := NewAPI(engine)

	router.GET("/health", api.HealthCheckHandler)
	router.GET("/metrics", gin.WrapH(engine.Metrics().Handler()))
	router.GET("/ws", api.WebSocketHandler)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/label", api.LabelHandler) // Label a JSONL body of reports
	}
}

// HealthCheckHandler provides a simple health check endpoint
func (api *API) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "avtag",
		"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
	})
}

// LabelHandler runs the pipeline over the request body, one JSON report per line
func (api *API) LabelHandler(c *gin.Context) {
	opts := LabelOptions{
		FullPaths:   queryBool(c, "path"),
		Compat:      queryBool(c, "compat"),
		PUP:         queryBool(c, "pup"),
		VTTags:      queryBool(c, "vtt"),
		VendorTags:  queryBool(c, "avtags"),
		AliasDetect: queryBool(c, "aliasdetect"),
	}
	req, err := NewRequest(c.DefaultQuery("format", "vt2"), c.DefaultQuery("hash", "md5"), opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session := NewSession(api.engine, nil)
	res, err := session.Run(c.Request.Context(), req, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  err.Error(),
			"run_id": session.RunID(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":      res.RunID,
		"lines":       res.Lines,
		"stats":       res.Summary.Stats,
		"aliases":     res.Summary.Aliases,
		"vendor_tags": res.Summary.VendorTags,
	})
}

// WebSocketHandler upgrades the connection and serves label requests on it
func (api *API) WebSocketHandler(c *gin.Context) {
	serveWs(api.engine, c.Writer, c.Request)
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}
