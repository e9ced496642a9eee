package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"VoiceboxStudio/internal/profiles"
	"VoiceboxStudio/internal/store"
	"VoiceboxStudio/internal/synth"
	"VoiceboxStudio/internal/tasks"
	"VoiceboxStudio/internal/timeline"
	"VoiceboxStudio/pkg/config"
	"VoiceboxStudio/pkg/metrics"
	"VoiceboxStudio/pkg/middleware"
	"VoiceboxStudio/pkg/sse"
)

type Handlers struct {
	db       *gorm.DB
	runner   *tasks.Runner
	manager  *tasks.Manager
	profiles *profiles.Service
	gens     *store.GenerationStore
	stories  *timeline.Service
	exporter *timeline.Exporter
	guard    *synth.Guard
	hub      *sse.Hub
	metrics  *metrics.Metrics
}

func NewHandlers(
	db *gorm.DB,
	runner *tasks.Runner,
	manager *tasks.Manager,
	profileSvc *profiles.Service,
	gens *store.GenerationStore,
	stories *timeline.Service,
	exporter *timeline.Exporter,
	guard *synth.Guard,
	hub *sse.Hub,
	m *metrics.Metrics,
) *Handlers {
	return &Handlers{
		db:       db,
		runner:   runner,
		manager:  manager,
		profiles: profileSvc,
		gens:     gens,
		stories:  stories,
		exporter: exporter,
		guard:    guard,
		hub:      hub,
		metrics:  m,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	prefix := config.GlobalConfig.APIPrefix
	r := engine.Group(prefix)

	// Register Global Singleton DB
	r.Use(middleware.InjectDB(h.db))
	r.Use(middleware.RateLimit(config.GlobalConfig.GenerateRate, prefix+"/generate"))

	h.registerGenerationRoutes(r)
	h.registerProfileRoutes(r)
	h.registerStoryRoutes(r)
	h.registerSystemRoutes(r)

	engine.GET("/metrics", metrics.Handler())
}

// 合成任务与生成记录
func (h *Handlers) registerGenerationRoutes(r *gin.RouterGroup) {
	r.POST("/generate", h.handleGenerate)

	r.GET("/tasks", h.handleListTasks)

	r.DELETE("/tasks/:id", h.handleCancelTask)

	r.GET("/events", h.handleEvents)

	gens := r.Group("generations")
	{
		gens.GET("", h.handleListGenerations)

		gens.GET("/:id", h.handleGetGeneration)

		gens.GET("/:id/audio", h.handleGenerationAudio)

		gens.DELETE("/:id", h.handleDeleteGeneration)
	}
}

// 声音档案与参考样本
func (h *Handlers) registerProfileRoutes(r *gin.RouterGroup) {
	group := r.Group("profiles")
	{
		group.POST("", h.handleCreateProfile)

		group.GET("", h.handleListProfiles)

		group.GET("/:id", h.handleGetProfile)

		group.PUT("/:id", h.handleUpdateProfile)

		group.DELETE("/:id", h.handleDeleteProfile)

		group.POST("/:id/samples", h.handleUploadSample)

		group.DELETE("/:id/samples/:sid", h.handleRemoveSample)
	}
}

// 故事时间轴
func (h *Handlers) registerStoryRoutes(r *gin.RouterGroup) {
	group := r.Group("stories")
	{
		group.POST("", h.handleCreateStory)

		group.GET("", h.handleListStories)

		group.GET("/:id", h.handleGetStory)

		group.PUT("/:id", h.handleRenameStory)

		group.DELETE("/:id", h.handleDeleteStory)

		group.POST("/:id/items", h.handleAddItem)

		group.DELETE("/:id/items/:itemId", h.handleRemoveItem)

		group.POST("/:id/reorder", h.handleReorder)

		group.PUT("/:id/items/:itemId/move", h.handleMoveItem)

		group.PUT("/:id/items/:itemId/trim", h.handleTrimItem)

		group.POST("/:id/items/:itemId/split", h.handleSplitItem)

		group.POST("/:id/items/:itemId/duplicate", h.handleDuplicateItem)

		group.GET("/:id/export", h.handleExportStory)
	}
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.GET("/stats", h.handleSystemStats)
	}
}
