// internal/services/config_service.go
package services

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/MVDirectorAI/internal/config"
	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/llm"
	"github.com/Corphon/MVDirectorAI/internal/utils"
)

// encryptedKeyPrefix 标记落盘配置中已加密的API密钥
const encryptedKeyPrefix = "enc:"

// ConfigService 提供生成端配置的读写与凭证管理
// API密钥落盘前加密，内存中只在注入Provider时解密
type ConfigService struct {
	mu sync.RWMutex

	// 缓存最近获取的配置，减少反复访问底层存储
	cachedConfig *config.AppConfig
	lastUpdated  time.Time

	llmService *LLMService
}

// NewConfigService 创建配置服务实例
func NewConfigService(llmService *LLMService) *ConfigService {
	return &ConfigService{
		cachedConfig: config.GetCurrentConfig(),
		lastUpdated:  time.Now(),
		llmService:   llmService,
	}
}

// secretKey 密钥加密用的口令，缺省时退回数据目录路径
func secretKey() string {
	if v := os.Getenv("CONFIG_SECRET"); v != "" {
		return v
	}
	return config.GetCurrentConfig().DataDir
}

// GetCurrentConfig 获取当前配置副本（密钥已脱敏）
func (s *ConfigService) GetCurrentConfig() *config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := config.GetCurrentConfig()
	cfg.GeminiAPIKey = maskKey(cfg.GeminiAPIKey)
	if cfg.LLMConfig != nil {
		masked := make(map[string]string, len(cfg.LLMConfig))
		for k, v := range cfg.LLMConfig {
			if k == "api_key" {
				v = maskKey(decodeStoredKey(v))
			}
			masked[k] = v
		}
		cfg.LLMConfig = masked
	}
	return cfg
}

// maskKey 只保留密钥末4位
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// decodeStoredKey 解密落盘形式的密钥，明文直接透传
func decodeStoredKey(stored string) string {
	if !strings.HasPrefix(stored, encryptedKeyPrefix) {
		return stored
	}
	plain, err := utils.Decrypt(strings.TrimPrefix(stored, encryptedKeyPrefix), secretKey())
	if err != nil {
		utils.GetLogger().Error("failed to decrypt stored API key", map[string]interface{}{
			"error": err.Error(),
		})
		return ""
	}
	return plain
}

// encodeStoredKey 加密密钥用于落盘
func encodeStoredKey(plain string) string {
	if plain == "" {
		return ""
	}
	encrypted, err := utils.Encrypt(plain, secretKey())
	if err != nil {
		utils.GetLogger().Error("failed to encrypt API key, storing in plain form", map[string]interface{}{
			"error": err.Error(),
		})
		return plain
	}
	return encryptedKeyPrefix + encrypted
}

// UpdateLLMConfig 更新提供方及其配置，并热切换生成端
func (s *ConfigService) UpdateLLMConfig(provider string, configMap map[string]string) error {
	if provider == "" {
		return apperrors.NewValidationError("provider不能为空", nil)
	}
	if configMap == nil {
		configMap = make(map[string]string)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 未提交新密钥时保留已保存的密钥
	current := config.GetCurrentConfig()
	if configMap["api_key"] == "" && current.LLMConfig != nil {
		configMap["api_key"] = decodeStoredKey(current.LLMConfig["api_key"])
	}
	if configMap["api_key"] == "" {
		return apperrors.NewMissingCredentialError("API key is required")
	}
	if _, ok := configMap["default_model"]; !ok {
		configMap["default_model"] = "gemini-2.5-flash"
	}

	// 先用明文密钥热切换Provider，成功后再加密落盘
	runtime := make(map[string]string, len(configMap))
	for k, v := range configMap {
		runtime[k] = v
	}
	if err := s.llmService.UpdateProvider(provider, runtime); err != nil {
		return err
	}

	stored := make(map[string]string, len(configMap))
	for k, v := range configMap {
		if k == "api_key" {
			v = encodeStoredKey(v)
		}
		stored[k] = v
	}
	if err := config.UpdateLLMConfig(provider, stored); err != nil {
		return apperrors.WrapError(err, "保存配置失败", apperrors.ErrorTypeError)
	}

	s.cachedConfig = config.GetCurrentConfig()
	s.lastUpdated = time.Now()

	utils.GetLogger().Info("LLM provider updated", map[string]interface{}{
		"provider": provider,
		"model":    configMap["default_model"],
	})
	return nil
}

// InitLLMFromConfig 启动时按落盘配置初始化生成端
// 没有可用密钥不算错误，服务以未就绪状态运行
func (s *ConfigService) InitLLMFromConfig() error {
	cfg := config.GetCurrentConfig()
	if cfg.LLMConfig == nil {
		return nil
	}

	apiKey := decodeStoredKey(cfg.LLMConfig["api_key"])
	if apiKey == "" {
		return nil
	}

	runtime := make(map[string]string, len(cfg.LLMConfig))
	for k, v := range cfg.LLMConfig {
		runtime[k] = v
	}
	runtime["api_key"] = apiKey
	return s.llmService.UpdateProvider(cfg.LLMProvider, runtime)
}

// ProviderStatus 返回生成端当前状态
func (s *ConfigService) ProviderStatus() map[string]interface{} {
	ready, state := s.llmService.GetProviderStatus()
	return map[string]interface{}{
		"ready":    ready,
		"state":    state,
		"provider": s.llmService.GetProviderName(),
	}
}

// SupportedProviders 列出已注册的提供方及其模型
func (s *ConfigService) SupportedProviders() map[string][]string {
	out := make(map[string][]string)
	for _, name := range llm.ListProviders() {
		out[name] = llm.GetSupportedModelsForProvider(name)
	}
	return out
}
