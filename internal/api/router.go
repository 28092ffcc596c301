package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/api/handlers"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/api/ws"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/auth"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/config"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/gallery"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/pkg/dto"
)

type RouterConfig struct {
	// Context bounds background work started by the router; nil means
	// context.Background.
	Context    context.Context
	APIKey     string
	RateLimit  config.RateLimitConfig
	Location   *time.Location
	Recognizer handlers.Recognizer
	Attendance handlers.AttendanceLister
	Events     handlers.EventQuerier
	// Snapshots is nil when MinIO is not configured.
	Snapshots handlers.ObjectGetter
	Gallery   *gallery.Holder
	// Hub is nil when NATS is not configured.
	Hub    *ws.Hub
	Checks map[string]handlers.CheckFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-API-Key", requestIDHeader},
		ExposeHeaders:   []string{requestIDHeader},
		MaxAge:          12 * time.Hour,
	}))

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, dto.ErrorResponse{Error: "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "not found"})
	})

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiKey := auth.APIKeyMiddleware(cfg.APIKey)
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	limit := RateLimitMiddleware(ctx, cfg.RateLimit)
	attendanceH := handlers.NewAttendanceHandler(cfg.Recognizer, cfg.Attendance)

	// Paths used by the existing kiosk page
	legacy := r.Group("/", apiKey)
	legacy.POST("/recognize_face/", limit, attendanceH.Recognize)
	legacy.GET("/today_attendance/", attendanceH.Today)

	// API v1 (with auth)
	v1 := r.Group("/v1", apiKey)

	v1.POST("/attendance/recognize", limit, attendanceH.Recognize)
	v1.GET("/attendance/today", attendanceH.Today)
	v1.GET("/attendance", attendanceH.ByDate)

	recognitionH := handlers.NewRecognitionHandler(cfg.Events, cfg.Snapshots, cfg.Location)
	v1.GET("/recognitions", recognitionH.List)
	v1.GET("/recognitions/snapshot", recognitionH.Snapshot)

	galleryH := handlers.NewGalleryHandler(cfg.Gallery)
	v1.GET("/gallery", galleryH.List)
	v1.POST("/gallery/rescan", galleryH.Rescan)

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	return r
}
