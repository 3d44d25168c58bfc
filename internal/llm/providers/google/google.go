// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Corphon/MVDirectorAI/internal/llm"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
			},
			baseURL: "https://generativelanguage.googleapis.com/v1beta",
		}
	})
}

type Provider struct {
	apiKey            string
	baseURL           string
	client            *http.Client
	defaultModel      string
	defaultImageModel string
	models            []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{}

	if model, exists := config["default_model"]; exists && model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.5-flash"
	}

	if model, exists := config["default_image_model"]; exists && model != "" {
		p.defaultImageModel = model
	} else {
		p.defaultImageModel = "gemini-2.5-flash-image"
	}

	if baseURL, exists := config["base_url"]; exists && baseURL != "" {
		p.baseURL = baseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

// buildParts 将文本与附件组装为Gemini的parts数组
func buildParts(text string, attachments []llm.ImageAttachment) []map[string]interface{} {
	parts := []map[string]interface{}{
		{"text": text},
	}
	for _, att := range attachments {
		parts = append(parts, map[string]interface{}{
			"inlineData": map[string]string{
				"mimeType": att.MimeType,
				"data":     base64.StdEncoding.EncodeToString(att.Data),
			},
		})
	}
	return parts
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	// 构建Gemini请求
	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": buildParts(req.Prompt, req.Attachments)},
		},
	}

	generationConfig := map[string]interface{}{
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		generationConfig["maxOutputTokens"] = req.MaxTokens
	}
	// 声明输出结构，由生成端强制JSON形状
	if req.ResponseSchema != nil {
		generationConfig["responseMimeType"] = "application/json"
		generationConfig["responseSchema"] = req.ResponseSchema
	}
	requestBody["generationConfig"] = generationConfig

	if req.SystemPrompt != "" {
		requestBody["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": req.SystemPrompt}},
		}
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(httpResp)
	}

	// 解析响应
	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			TotalTokenCount int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	if len(response.Candidates) == 0 {
		return nil, errors.New("google gemini未返回任何结果")
	}

	var resultText string
	for _, part := range response.Candidates[0].Content.Parts {
		resultText += part.Text
	}

	return &llm.CompletionResponse{
		Text:         resultText,
		FinishReason: response.Candidates[0].FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// GenerateImages 调用图像模型渲染静帧，按请求数量逐张生成
func (p *Provider) GenerateImages(ctx context.Context, req llm.ImageRequest) ([]llm.GeneratedImageData, error) {
	model := req.Model
	if model == "" {
		model = p.defaultImageModel
	}
	count := req.Count
	if count < 1 {
		count = 1
	}

	prompt := req.Prompt
	if req.AspectRatio != "" {
		prompt = fmt.Sprintf("%s\n\nAspect ratio: %s", prompt, req.AspectRatio)
	}

	requestBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"role": "user", "parts": buildParts(prompt, req.ReferenceImages)},
		},
		"generationConfig": map[string]interface{}{
			"responseModalities": []string{"IMAGE"},
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	images := make([]llm.GeneratedImageData, 0, count)
	for i := 0; i < count; i++ {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewReader(jsonData))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, err
		}

		batch, err := decodeImageResponse(httpResp)
		httpResp.Body.Close()
		if err != nil {
			return nil, err
		}
		images = append(images, batch...)
	}

	return images, nil
}

// decodeImageResponse 提取响应中的全部inlineData图像
func decodeImageResponse(httpResp *http.Response) ([]llm.GeneratedImageData, error) {
	if httpResp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(httpResp)
	}

	var response struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					InlineData *struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, err
	}

	var images []llm.GeneratedImageData
	for _, cand := range response.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("解码图像数据失败: %w", err)
			}
			images = append(images, llm.GeneratedImageData{
				Data:     raw,
				MimeType: part.InlineData.MimeType,
			})
		}
	}

	if len(images) == 0 {
		return nil, errors.New("google gemini未返回任何图像")
	}
	return images, nil
}

// decodeAPIError 从非200响应中提取错误信息
func decodeAPIError(httpResp *http.Response) error {
	body, _ := io.ReadAll(httpResp.Body)
	var errorResp map[string]interface{}
	if err := json.Unmarshal(body, &errorResp); err == nil {
		if errorObj, ok := errorResp["error"].(map[string]interface{}); ok {
			return fmt.Errorf("google gemini API错误(%d): %v", httpResp.StatusCode, errorObj["message"])
		}
	}
	return fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, string(body))
}
