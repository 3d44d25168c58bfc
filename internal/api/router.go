// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/Corphon/MVDirectorAI/internal/config"
	"github.com/Corphon/MVDirectorAI/internal/di"
	"github.com/Corphon/MVDirectorAI/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 只从容器获取服务，不再创建新实例
	container := di.GetContainer()

	projectService, ok := container.Get("project").(*services.ProjectService)
	if !ok {
		return nil, fmt.Errorf("项目服务未正确初始化")
	}

	configService, ok := container.Get("config").(*services.ConfigService)
	if !ok {
		return nil, fmt.Errorf("配置服务未正确初始化")
	}

	exportService, ok := container.Get("export").(*services.ExportService)
	if !ok {
		return nil, fmt.Errorf("导出服务未正确初始化")
	}

	updateHub, ok := container.Get("update_hub").(*UpdateHub)
	if !ok {
		return nil, fmt.Errorf("更新广播器未正确初始化")
	}

	handler := NewHandler(projectService, configService, exportService, updateHub)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.Use(corsMiddleware())

	// WebSocket 支持
	r.GET("/ws/updates", updateHub.HandleUpdates)
	r.GET("/ws/status", handler.WebSocketStatus)

	// ===============================
	// API路由
	// ===============================
	apiGroup := r.Group("/api")
	{
		// 项目状态
		apiGroup.GET("/project", handler.GetProject)
		apiGroup.PUT("/project/lyrics", handler.SetLyrics)
		apiGroup.PUT("/project/locale", handler.SetLocale)
		apiGroup.POST("/project/advance", handler.AdvanceStage)
		apiGroup.PUT("/project/stage", handler.GoToStage)

		// 故事阶段
		apiGroup.POST("/stories/generate", handler.GenerateStories)
		apiGroup.POST("/stories/custom", handler.AddCustomStory)
		apiGroup.POST("/stories/expand", handler.ExpandCustomStory)
		apiGroup.PUT("/stories/selection", handler.SelectStory)

		// 人物阶段
		apiGroup.POST("/characters/generate", handler.GenerateCharacters)
		apiGroup.POST("/characters/:index/regenerate", handler.RegenerateCharacter)
		apiGroup.POST("/characters", handler.AddCharacter)
		apiGroup.PUT("/characters/:index", handler.UpdateCharacter)
		apiGroup.DELETE("/characters/:index", handler.DeleteCharacter)

		// 分镜阶段
		apiGroup.POST("/storyboard/generate", handler.GenerateStoryboard)
		apiGroup.POST("/storyboard/detailed/generate", handler.GenerateDetailedStoryboard)

		// 提示词与渲染
		apiGroup.POST("/prompts/image/generate", handler.GenerateImagePrompts)
		apiGroup.POST("/prompts/video/generate", handler.GenerateVideoPrompts)
		apiGroup.POST("/scenes/:id/images", handler.RenderSceneImages)

		// 导出
		apiGroup.GET("/export/markdown", handler.ExportMarkdown)
		apiGroup.GET("/export/stories", handler.ExportStories)
		apiGroup.GET("/export/characters", handler.ExportCharacters)

		// 设置
		apiGroup.GET("/settings", handler.GetSettings)
		apiGroup.PUT("/settings", handler.UpdateSettings)
	}

	return r, nil
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
