// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的AI提供者")

// ImageAttachment 附加到请求的参考图像
type ImageAttachment struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// 图像生成支持的宽高比
var SupportedAspectRatios = []string{"21:9", "16:9", "1:1", "9:16"}

// IsValidAspectRatio 检查宽高比选择是否受支持
func IsValidAspectRatio(ratio string) bool {
	for _, r := range SupportedAspectRatios {
		if r == ratio {
			return true
		}
	}
	return false
}

// CompletionRequest 结构化文本生成请求
// ResponseSchema 为可机检的输出结构声明（有序记录序列或单条记录），由生成能力强制执行
type CompletionRequest struct {
	Prompt         string                 `json:"prompt"`
	SystemPrompt   string                 `json:"system_prompt,omitempty"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	Temperature    float32                `json:"temperature,omitempty"`
	Model          string                 `json:"model,omitempty"`
	ResponseSchema map[string]interface{} `json:"response_schema,omitempty"`
	Attachments    []ImageAttachment      `json:"attachments,omitempty"`
}

// CompletionResponse 结构化文本生成响应
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// ImageRequest 图像渲染请求
type ImageRequest struct {
	Prompt          string            `json:"prompt"`
	AspectRatio     string            `json:"aspect_ratio"` // 21:9|16:9|1:1|9:16
	Count           int               `json:"count"`        // 1-20
	Model           string            `json:"model,omitempty"`
	ReferenceImages []ImageAttachment `json:"reference_images,omitempty"`
}

// GeneratedImageData 图像渲染响应中的一张图
type GeneratedImageData struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// Provider 定义所有生成能力提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 结构化文本生成
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// 图像渲染
	GenerateImages(ctx context.Context, req ImageRequest) ([]GeneratedImageData, error)
}

// ProviderFactory 提供者工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}

// GetSupportedModelsForProvider 获取指定提供商支持的模型列表
func GetSupportedModelsForProvider(name string) []string {
	factory, exists := providers[name]
	if !exists {
		return []string{}
	}

	provider := factory()
	return provider.GetSupportedModels()
}
