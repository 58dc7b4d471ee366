package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/handler"
	"github.com/stemsi/nexus-backend/internal/middleware"
	"github.com/stemsi/nexus-backend/internal/response"
	"github.com/stemsi/nexus-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Paper   *handler.PaperHandler
	Exam    *handler.ExamHandler
	Result  *handler.ResultHandler
	Daily   *handler.DailyHandler
	Setting *handler.SettingHandler
	System  *handler.SystemHandler
	WS      *handler.WSHandler
	Assist  *handler.AssistHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// generateLimiter guards the model-backed generation routes.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	generateLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	// Question payloads are large; compress them for clients that accept br.
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireJWT(authService))

	// ─── 1. Papers ─────────────────────────────────────────────────────
	papers := api.Group("/papers")
	{
		papers.POST("/generate", generateLimiter.Middleware(), handlers.Paper.GeneratePaper)
		papers.GET("/vault", middleware.CacheControl(60), handlers.Paper.ListVault)
	}

	// ─── 2. Exam Session ───────────────────────────────────────────────
	exams := api.Group("/exams")
	exams.Use(middleware.NoStore())
	{
		exams.POST("", handlers.Exam.StartExam)
		exams.GET("/active", handlers.Exam.GetActive)
		exams.PUT("/active/answer", handlers.Exam.Answer)
		exams.DELETE("/active/answer", handlers.Exam.ClearAnswer)
		exams.POST("/active/toggle", handlers.Exam.ToggleOption)
		exams.POST("/active/navigate", handlers.Exam.Navigate)
		exams.POST("/active/mark", handlers.Exam.ToggleMark)
		exams.POST("/active/submit", handlers.Exam.Submit)
	}

	// ─── 3. Results ────────────────────────────────────────────────────
	results := api.Group("/results")
	{
		results.GET("/last", handlers.Result.GetLast)
		results.GET("/history", handlers.Result.ListHistory)
		results.GET("/archive", handlers.Result.ListArchived)
		results.GET("/:id", handlers.Result.GetByID)
		results.POST("/:id/insight", generateLimiter.Middleware(), handlers.Assist.Insight)
	}

	// ─── 4. Daily Challenge ────────────────────────────────────────────
	dailyAPI := api.Group("/daily")
	{
		dailyAPI.GET("", handlers.Daily.GetStatus)
		dailyAPI.POST("/start", handlers.Daily.Start)
		dailyAPI.GET("/result", handlers.Daily.GetResult)
		dailyAPI.GET("/leaderboard", handlers.Daily.GetLeaderboard)
	}

	// ─── 5. Admin ──────────────────────────────────────────────────────
	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.POST("/daily/publish", handlers.Daily.Publish)
		admin.POST("/daily/generate", generateLimiter.Middleware(), handlers.Daily.Generate)
		admin.POST("/daily/parse", generateLimiter.Middleware(), handlers.Assist.ParseDocument)
		admin.GET("/daily/:date/attempts", handlers.Daily.GetAnalysis)

		admin.GET("/settings", handlers.Setting.GetAllSettings)
		admin.PUT("/settings", handlers.Setting.UpdateSettings)

		admin.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	// ─── 6. WebSocket (token in query) ─────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/exams/active/stream", handlers.WS.ExamStream)
		ws.GET("/daily/stream", handlers.WS.DailyStream)
	}

	return router
}
