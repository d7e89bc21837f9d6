package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/config"
	"github.com/jengzang/farm-advisory-backend-go/internal/handler"
	"github.com/jengzang/farm-advisory-backend-go/internal/middleware"
)

// Handlers groups the HTTP handlers the router mounts
type Handlers struct {
	Location    *handler.LocationHandler
	Geocoding   *handler.GeocodingHandler
	Environment *handler.EnvironmentHandler
	Forms       *handler.FormHandler
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, h Handlers, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(logger), gin.Recovery())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Client-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Farm Advisory Backend API is running",
		})
	}
	r.GET("/health", health)

	// API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/health", health)

		// 定位
		api.POST("/location/acquire", h.Location.Acquire)

		// 地理编码
		search := []gin.HandlerFunc{h.Geocoding.Search}
		if cfg.Upstream.SearchRate > 0 {
			search = append([]gin.HandlerFunc{middleware.RateLimit(cfg.Upstream.SearchRate, time.Minute)}, search...)
		}
		geocoding := api.Group("/geocoding")
		{
			geocoding.GET("/reverse", h.Geocoding.Reverse)
			geocoding.GET("/search", search...)
		}

		// 土壤与天气
		api.GET("/soil-weather-data/:lat/:lon", h.Environment.Combined)
		api.GET("/environment/:lat/:lon", h.Environment.Reading)

		// 表单
		forms := api.Group("/forms")
		{
			forms.POST("", h.Forms.Create)
			forms.GET("/:id", h.Forms.Get)
			forms.DELETE("/:id", h.Forms.Delete)
			forms.PUT("/:id/fields/:field", h.Forms.SetField)
			forms.POST("/:id/coordinate", h.Forms.SetCoordinate)
			forms.POST("/:id/manual-coordinate", h.Forms.SetManualCoordinate)
			forms.POST("/:id/place", h.Forms.SetPlace)
			forms.POST("/:id/climate-autofill", h.Forms.SetClimateAutoFill)
			forms.POST("/:id/manual-entry", h.Forms.SetManualEntry)
			forms.POST("/:id/refresh", h.Forms.Refresh)
			forms.POST("/:id/clear", h.Forms.Clear)
			forms.GET("/:id/validate", h.Forms.Validate)
			forms.POST("/:id/submit", h.Forms.Submit)
			forms.GET("/:id/submissions", h.Forms.ListSubmissions)
		}

		api.GET("/submissions/:id", h.Forms.GetSubmission)
	}

	return r
}
