// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Corphon/MVDirectorAI/internal/api"
	"github.com/Corphon/MVDirectorAI/internal/config"
	"github.com/Corphon/MVDirectorAI/internal/di"
	"github.com/Corphon/MVDirectorAI/internal/services"
	"github.com/Corphon/MVDirectorAI/internal/utils"

	// 注册生成能力提供者
	_ "github.com/Corphon/MVDirectorAI/internal/llm/providers/google"
)

var (
	instance *App
	once     sync.Once
)

// App 应用程序级的生命周期容器
type App struct {
	stopChan chan struct{}
}

// GetApp 获取应用单例
func GetApp() *App {
	once.Do(func() {
		instance = &App{
			stopChan: make(chan struct{}),
		}
	})
	return instance
}

// InitServices 按依赖顺序初始化全部服务并注册到容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()

	// 日志先行，后续服务初始化都可能需要
	if err := utils.InitLogger(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	if cfg.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}

	// 1. 生成端网关
	llmService, err := services.NewLLMService()
	if err != nil {
		return fmt.Errorf("初始化LLM服务失败: %w", err)
	}
	container.Register("llm", llmService)

	// 2. 配置服务，并按落盘配置恢复凭证
	configService := services.NewConfigService(llmService)
	if err := configService.InitLLMFromConfig(); err != nil {
		// 凭证无效不阻止启动，服务会以未就绪状态运行
		utils.GetLogger().Warn("failed to restore LLM provider from saved config", map[string]interface{}{
			"error": err.Error(),
		})
	}
	container.Register("config", configService)

	// 3. 阶段生成器
	generationService := services.NewGenerationService(llmService)
	container.Register("generation", generationService)

	// 4. 项目聚合
	projectService := services.NewProjectService(generationService)
	container.Register("project", projectService)

	// 5. 导出
	exportService := services.NewExportService(projectService)
	container.Register("export", exportService)

	// 6. WebSocket 更新广播器，并接到项目事件出口上
	updateHub := api.NewUpdateHub()
	projectService.SetNotifier(updateHub)
	container.Register("update_hub", updateHub)

	utils.GetLogger().Info("services initialized", map[string]interface{}{
		"count": len(container.GetNames()),
	})
	return nil
}
