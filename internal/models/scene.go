// internal/models/scene.go
package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Scene 的双语字段名
const (
	FieldVisualAction    = "visualAction"
	FieldMoodAndLighting = "moodAndLighting"
	FieldCameraMovement  = "cameraMovement"
)

// MaxShotDurationSeconds 详细分镜中每个镜头的时长上限
const MaxShotDurationSeconds = 5.0

// GeneratedImage 一张由图像模型生成的静帧
type GeneratedImage struct {
	Data     string `json:"data"` // base64编码的图像数据
	MimeType string `json:"mime_type"`
}

// Scene 表示分镜表中的一个场景（粗分镜）或镜头（详细分镜）
// SceneNumber 是所在列表内从1开始的连续编号，列表重建时会重新分配；
// ID 在创建时分配且不再变化，供图像累积与事件推送定位镜头使用
type Scene struct {
	ID                string           `json:"id"`
	SceneNumber       int              `json:"scene_number"`
	LyricsSegment     string           `json:"lyrics_segment"`
	VisualAction      string           `json:"visual_action"`
	MoodAndLighting   string           `json:"mood_and_lighting"`
	CameraMovement    string           `json:"camera_movement"`
	EstimatedDuration string           `json:"estimated_duration"` // 自由格式，如 "4.5s"
	ImagePrompt       string           `json:"image_prompt,omitempty"`
	VideoPrompt       string           `json:"video_prompt,omitempty"`
	GeneratedImages   []GeneratedImage `json:"generated_images,omitempty"`
	Localized         LocalizedSet     `json:"localized,omitempty"`
}

// NewSceneID 生成镜头的稳定标识
func NewSceneID() string {
	return uuid.NewString()
}

// SceneFieldNames 返回场景的全部双语字段
func SceneFieldNames() []string {
	return []string{FieldVisualAction, FieldMoodAndLighting, FieldCameraMovement}
}

// LocalizedField 实现 Localizable
func (s *Scene) LocalizedField(locale Locale, field string) string {
	if s == nil {
		return ""
	}
	return s.Localized.Get(locale, field)
}

// DefaultField 实现 Localizable
func (s *Scene) DefaultField(field string) string {
	if s == nil {
		return ""
	}
	switch field {
	case FieldVisualAction:
		return s.VisualAction
	case FieldMoodAndLighting:
		return s.MoodAndLighting
	case FieldCameraMovement:
		return s.CameraMovement
	default:
		return ""
	}
}

// SetDefaultField 按字段名写入默认字段
func (s *Scene) SetDefaultField(field, value string) {
	switch field {
	case FieldVisualAction:
		s.VisualAction = value
	case FieldMoodAndLighting:
		s.MoodAndLighting = value
	case FieldCameraMovement:
		s.CameraMovement = value
	}
}

// Materialize 将默认字段切换为指定语言的译文（译文缺失时保留原值）
func (s *Scene) Materialize(locale Locale) {
	for _, field := range SceneFieldNames() {
		if v := Resolve(s, field, locale); v != "" {
			s.SetDefaultField(field, v)
		}
	}
}

// Clone 返回场景的深拷贝
func (s *Scene) Clone() Scene {
	out := *s
	if s.GeneratedImages != nil {
		out.GeneratedImages = append([]GeneratedImage(nil), s.GeneratedImages...)
	}
	out.Localized = s.Localized.Clone()
	return out
}

// ParseDurationSeconds 解析时长字符串开头的数字，单位为秒
// 接受 "4.5s"、"3 sec"、"5" 等形式；无法解析时返回错误
func ParseDurationSeconds(raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("empty duration")
	}

	end := 0
	seenDot := false
	for end < len(trimmed) {
		ch := trimmed[end]
		if ch >= '0' && ch <= '9' {
			end++
			continue
		}
		if ch == '.' && !seenDot {
			seenDot = true
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, fmt.Errorf("no leading numeral in duration %q", raw)
	}

	seconds, err := strconv.ParseFloat(trimmed[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return seconds, nil
}
