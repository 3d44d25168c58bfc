// internal/api/handlers.go
package api

import (
	"encoding/base64"
	"strconv"
	"time"

	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/llm"
	"github.com/Corphon/MVDirectorAI/internal/models"
	"github.com/Corphon/MVDirectorAI/internal/services"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	ProjectService *services.ProjectService // 项目状态与各阶段控制器
	ConfigService  *services.ConfigService  // 生成端配置
	ExportService  *services.ExportService  // Markdown导出
	UpdateHub      *UpdateHub               // WebSocket 更新广播
	Response       *ResponseHelper          // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(projectService *services.ProjectService, configService *services.ConfigService,
	exportService *services.ExportService, updateHub *UpdateHub) *Handler {

	return &Handler{
		ProjectService: projectService,
		ConfigService:  configService,
		ExportService:  exportService,
		UpdateHub:      updateHub,
		Response:       NewResponseHelper(),
	}
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ImagePayload 请求中携带的图像附件
type ImagePayload struct {
	Data     string `json:"data"` // base64
	MimeType string `json:"mime_type"`
}

func (p *ImagePayload) toAttachment() (*llm.ImageAttachment, error) {
	if p == nil || p.Data == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, apperrors.NewValidationError("图像数据不是有效的base64", err)
	}
	mimeType := p.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &llm.ImageAttachment{Data: raw, MimeType: mimeType}, nil
}

// ========================================
// 项目状态
// ========================================

// stageStatusMap 汇总各阶段的加载与错误状态
func (h *Handler) stageStatusMap() map[string]services.StageStatus {
	out := make(map[string]services.StageStatus)
	for stage := models.StageLyrics; stage <= models.StageVideoPrompts; stage++ {
		out[stage.String()] = h.ProjectService.StageStatus(stage)
	}
	return out
}

// GetProject 返回完整项目聚合与阶段状态
func (h *Handler) GetProject(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"project": h.ProjectService.Project(),
		"stages":  h.stageStatusMap(),
	})
}

// SetLyricsRequest 设置歌词的请求结构
type SetLyricsRequest struct {
	Lyrics string `json:"lyrics"`
}

// SetLyrics 设置歌词
func (h *Handler) SetLyrics(c *gin.Context) {
	var req SetLyricsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ProjectService.SetLyrics(req.Lyrics); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, nil, "歌词已更新")
}

// SetLocaleRequest 切换语言的请求结构
type SetLocaleRequest struct {
	Locale string `json:"locale"`
}

// SetLocale 切换展示语言
func (h *Handler) SetLocale(c *gin.Context) {
	var req SetLocaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ProjectService.SetActiveLocale(models.Locale(req.Locale)); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, h.ProjectService.Project(), "语言已切换")
}

// AdvanceStage 前进一个阶段
func (h *Handler) AdvanceStage(c *gin.Context) {
	project, err := h.ProjectService.Advance()
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, project)
}

// GoToStageRequest 阶段跳转的请求结构
type GoToStageRequest struct {
	Stage int `json:"stage"`
}

// GoToStage 跳转到已到达过的阶段
func (h *Handler) GoToStage(c *gin.Context) {
	var req GoToStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	project, err := h.ProjectService.GoToStage(models.Stage(req.Stage))
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, project)
}

// ========================================
// 故事阶段
// ========================================

// GenerateStories 追加生成一批故事概念
func (h *Handler) GenerateStories(c *gin.Context) {
	stories, err := h.ProjectService.GenerateStories(c.Request.Context())
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"batch":   stories,
		"stories": h.ProjectService.Project().Stories,
	})
}

// CustomStoryRequest 手工自定义故事的请求结构
type CustomStoryRequest struct {
	Title    string `json:"title"`
	Genre    string `json:"genre"`
	Mood     string `json:"mood"`
	Synopsis string `json:"synopsis"`
}

// AddCustomStory 手工添加自定义故事
func (h *Handler) AddCustomStory(c *gin.Context) {
	var req CustomStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	story, err := h.ProjectService.AddCustomStory(req.Title, req.Genre, req.Mood, req.Synopsis)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Created(c, story)
}

// ExpandStoryRequest 关键词扩写故事的请求结构
type ExpandStoryRequest struct {
	Keywords string `json:"keywords"`
}

// ExpandCustomStory 用AI把关键词扩写为完整故事
func (h *Handler) ExpandCustomStory(c *gin.Context) {
	var req ExpandStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	story, err := h.ProjectService.ExpandCustomStory(c.Request.Context(), req.Keywords)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Created(c, story)
}

// SelectStoryRequest 故事选择的请求结构
type SelectStoryRequest struct {
	Index int `json:"index"`
}

// SelectStory 选择故事（-1清除选择）
func (h *Handler) SelectStory(c *gin.Context) {
	var req SelectStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ProjectService.SelectStory(req.Index); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"selected_index": req.Index})
}

// ========================================
// 人物阶段
// ========================================

// GenerateCharacters 生成人物（整体替换花名册）
func (h *Handler) GenerateCharacters(c *gin.Context) {
	roster, err := h.ProjectService.GenerateCharacters(c.Request.Context())
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, roster)
}

// RegenerateCharacterRequest 定向再生成的请求结构
type RegenerateCharacterRequest struct {
	Instruction    string        `json:"instruction"`
	ReferenceImage *ImagePayload `json:"reference_image,omitempty"`
}

// RegenerateCharacter 定向再生成单个人物
func (h *Handler) RegenerateCharacter(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, "无效的人物索引", err.Error())
		return
	}

	var req RegenerateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	refImage, err := req.ReferenceImage.toAttachment()
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}

	character, err := h.ProjectService.RegenerateCharacter(c.Request.Context(), index, req.Instruction, refImage)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, character)
}

// CharacterRequest 手工增改人物的请求结构
type CharacterRequest struct {
	Name              string   `json:"name"`
	Role              string   `json:"role"`
	VisualDescription string   `json:"visual_description"`
	Personality       string   `json:"personality"`
	Outfit            string   `json:"outfit"`
	Keywords          []string `json:"keywords"`
}

func (r *CharacterRequest) toModel() models.Character {
	return models.Character{
		Name:              r.Name,
		Role:              r.Role,
		VisualDescription: r.VisualDescription,
		Personality:       r.Personality,
		Outfit:            r.Outfit,
		Keywords:          r.Keywords,
		Localized:         make(models.LocalizedSet),
	}
}

// AddCharacter 手工添加人物
func (h *Handler) AddCharacter(c *gin.Context) {
	var req CharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ProjectService.AddCharacter(req.toModel()); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Created(c, h.ProjectService.Project().Characters)
}

// UpdateCharacter 手工编辑人物
func (h *Handler) UpdateCharacter(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, "无效的人物索引", err.Error())
		return
	}

	var req CharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ProjectService.UpdateCharacter(index, req.toModel()); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, h.ProjectService.Project().Characters)
}

// DeleteCharacter 删除人物
func (h *Handler) DeleteCharacter(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.Response.BadRequest(c, "无效的人物索引", err.Error())
		return
	}

	if err := h.ProjectService.DeleteCharacter(index); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, h.ProjectService.Project().Characters)
}

// ========================================
// 分镜与提示词阶段
// ========================================

// GenerateStoryboard 生成粗分镜
func (h *Handler) GenerateStoryboard(c *gin.Context) {
	scenes, err := h.ProjectService.GenerateStoryboard(c.Request.Context())
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, scenes)
}

// GenerateDetailedStoryboard 生成详细分镜（≤5秒切分）
func (h *Handler) GenerateDetailedStoryboard(c *gin.Context) {
	shots, err := h.ProjectService.GenerateDetailedStoryboard(c.Request.Context())
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, shots)
}

// GenerateImagePrompts 为全部镜头生成图像提示词
func (h *Handler) GenerateImagePrompts(c *gin.Context) {
	if err := h.ProjectService.GenerateImagePrompts(c.Request.Context()); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, h.ProjectService.Project().DetailedScenes)
}

// GenerateVideoPrompts 为全部镜头生成视频提示词
func (h *Handler) GenerateVideoPrompts(c *gin.Context) {
	if err := h.ProjectService.GenerateVideoPrompts(c.Request.Context()); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, h.ProjectService.Project().DetailedScenes)
}

// RenderImagesRequest 镜头渲染的请求结构
type RenderImagesRequest struct {
	AspectRatio     string         `json:"aspect_ratio"`
	Count           int            `json:"count"`
	Model           string         `json:"model"`
	ReferenceImages []ImagePayload `json:"reference_images,omitempty"`
}

// RenderSceneImages 为单个镜头渲染静帧并追加
func (h *Handler) RenderSceneImages(c *gin.Context) {
	sceneID := c.Param("id")

	var req RenderImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}
	if req.Count == 0 {
		req.Count = 1
	}

	var refs []llm.ImageAttachment
	for i := range req.ReferenceImages {
		att, err := req.ReferenceImages[i].toAttachment()
		if err != nil {
			h.Response.FromAppError(c, err)
			return
		}
		if att != nil {
			refs = append(refs, *att)
		}
	}

	images, err := h.ProjectService.RenderSceneImages(c.Request.Context(),
		sceneID, req.AspectRatio, req.Count, req.Model, refs)
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, images)
}

// ========================================
// 导出
// ========================================

// exportResponse 统一的导出回包
func (h *Handler) exportResponse(c *gin.Context, result *services.ExportResult, err error) {
	if err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	if c.DefaultQuery("format", "download") == "json" {
		h.Response.Success(c, result, "导出成功")
		return
	}
	h.Response.FileResponse(c, result.Content, result.FileName, "text/markdown; charset=utf-8")
}

// ExportMarkdown 导出完整项目文档
func (h *Handler) ExportMarkdown(c *gin.Context) {
	result, err := h.ExportService.ExportFullProject()
	h.exportResponse(c, result, err)
}

// ExportStories 导出故事列表
func (h *Handler) ExportStories(c *gin.Context) {
	result, err := h.ExportService.ExportStories()
	h.exportResponse(c, result, err)
}

// ExportCharacters 导出人物设定
func (h *Handler) ExportCharacters(c *gin.Context) {
	result, err := h.ExportService.ExportCharacters()
	h.exportResponse(c, result, err)
}

// ========================================
// 设置
// ========================================

// GetSettings 返回脱敏后的配置与生成端状态
func (h *Handler) GetSettings(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"config":    h.ConfigService.GetCurrentConfig(),
		"status":    h.ConfigService.ProviderStatus(),
		"providers": h.ConfigService.SupportedProviders(),
	})
}

// UpdateSettingsRequest 更新生成端配置的请求结构
type UpdateSettingsRequest struct {
	Provider string            `json:"provider"`
	Config   map[string]string `json:"config"`
}

// UpdateSettings 更新提供方配置并热切换
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ConfigService.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.Response.FromAppError(c, err)
		return
	}
	h.Response.Success(c, h.ConfigService.ProviderStatus(), "配置已更新")
}

// WebSocketStatus 返回连接统计（调试用）
func (h *Handler) WebSocketStatus(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"clients":   h.UpdateHub.ClientCount(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
