// internal/services/llm_service.go
package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/MVDirectorAI/internal/config"
	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/llm"
	"github.com/Corphon/MVDirectorAI/internal/utils"
)

// LLMService 提供统一的生成能力调用入口
// 失败立即上抛给调用方，不做内部重试；也不做响应缓存——
// 各阶段的"再生成"要求每次都得到新批次，按提示词缓存会原样重放上一批
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	isReady       bool
	readyState    string
}

// NewLLMService 根据当前配置创建生成服务
// 凭证缺失时返回未就绪的服务实例而不是错误，可稍后通过UpdateProvider补配
func NewLLMService() (*LLMService, error) {
	service := &LLMService{
		readyState: "Uninitialized",
	}

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		service.readyState = "Failed to retrieve configuration"
		return service, nil
	}

	if cfg.LLMProvider == "" || cfg.LLMConfig == nil || cfg.LLMConfig["api_key"] == "" {
		service.readyState = "API key not configured"
		return service, nil
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = "Initialization failed: " + err.Error()
		return service, nil
	}

	service.provider = provider
	service.providerName = cfg.LLMProvider
	service.isReady = true
	service.readyState = "Ready"

	return service, nil
}

// IsReady 返回服务是否已就绪（凭证可用性检查）
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.provider != nil && s.isReady
}

// GetReadyState 返回服务就绪状态描述
func (s *LLMService) GetReadyState() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.readyState
}

// GetProviderStatus 返回服务是否就绪以及可读描述
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM服务实例未初始化"
	}
	if s.IsReady() {
		return true, "Ready"
	}
	return false, s.GetReadyState()
}

// GetProviderName 返回当前提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	return s.providerName
}

// UpdateProvider 切换生成能力提供商
func (s *LLMService) UpdateProvider(providerName string, providerConfig map[string]string) error {
	provider, err := llm.GetProvider(providerName, providerConfig)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = "Configuration failed: " + err.Error()
		s.providerMutex.Unlock()
		return err
	}

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = providerName
	s.isReady = true
	s.readyState = "Ready"

	return nil
}

// currentProvider 取当前提供者；未就绪时返回凭证缺失错误
func (s *LLMService) currentProvider() (llm.Provider, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if !s.isReady || s.provider == nil {
		return nil, apperrors.NewMissingCredentialError("生成能力未就绪: " + s.readyState)
	}
	return s.provider, nil
}

// CreateStructuredCompletion 发起一次结构化生成并解析到outputSchema
// responseSchema 是声明给生成端的输出形状；attachments 为可选的参考图像
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string,
	responseSchema map[string]interface{}, attachments []llm.ImageAttachment, outputSchema interface{}) error {

	provider, err := s.currentProvider()
	if err != nil {
		return err
	}

	structuredSystemPrompt := systemPrompt
	if structuredSystemPrompt != "" {
		structuredSystemPrompt += "\n\n"
	}
	structuredSystemPrompt += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

	req := llm.CompletionRequest{
		Prompt:         prompt,
		SystemPrompt:   structuredSystemPrompt,
		Temperature:    0.7,
		ResponseSchema: responseSchema,
		Attachments:    attachments,
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, req)
	utils.GetMetricsCollector().RecordDuration("llm.completion", time.Since(start))
	if err != nil {
		utils.GetMetricsCollector().IncrementCounter("llm.completion.error")
		return apperrors.WrapError(err, "生成调用失败", apperrors.ErrorTypeError)
	}
	utils.GetMetricsCollector().IncrementCounter("llm.completion.ok")

	text := cleanJSONString(resp.Text)
	if text == "" {
		return apperrors.NewEmptyResponseError("生成端未返回可解析内容")
	}

	if err := json.Unmarshal([]byte(text), outputSchema); err != nil {
		return apperrors.NewMalformedResponseError("生成结果不符合声明的结构", err)
	}

	utils.GetLogger().Debug("structured completion parsed", map[string]interface{}{
		"provider": resp.ProviderName,
		"model":    resp.ModelName,
		"tokens":   resp.TokensUsed,
	})

	return nil
}

// GenerateImages 发起一次图像渲染
func (s *LLMService) GenerateImages(ctx context.Context, req llm.ImageRequest) ([]llm.GeneratedImageData, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	images, err := provider.GenerateImages(ctx, req)
	utils.GetMetricsCollector().RecordDuration("llm.image", time.Since(start))
	if err != nil {
		utils.GetMetricsCollector().IncrementCounter("llm.image.error")
		return nil, apperrors.WrapError(err, "图像渲染失败", apperrors.ErrorTypeError)
	}
	utils.GetMetricsCollector().IncrementCounter("llm.image.ok")

	if len(images) == 0 {
		return nil, apperrors.NewEmptyResponseError("图像渲染未返回任何结果")
	}
	return images, nil
}

// cleanJSONString 去除生成文本前后的非JSON内容（代码围栏、BOM等）
func cleanJSONString(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "\uFEFF")

	// 剥掉markdown代码围栏
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	// 截取首个JSON起始符到末个结束符之间的内容
	start := strings.IndexAny(cleaned, "[{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(cleaned, "]}")
	if end < start {
		return ""
	}
	return cleaned[start : end+1]
}
