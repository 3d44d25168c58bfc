// internal/models/story.go
package models

// StoryOption 的双语字段名
const (
	FieldTitle    = "title"
	FieldGenre    = "genre"
	FieldSynopsis = "synopsis"
	FieldMood     = "mood"
)

// StoryOption 表示一个MV故事概念
// 身份是列表中的位置，没有持久ID；默认字段与生成时指定语言的译文保持一致
type StoryOption struct {
	Title     string       `json:"title"`
	Genre     string       `json:"genre"`
	Synopsis  string       `json:"synopsis"`
	Mood      string       `json:"mood"`
	IsCustom  bool         `json:"is_custom,omitempty"` // 用户自建或AI扩写的自定义故事
	Localized LocalizedSet `json:"localized,omitempty"`
}

// StoryFieldNames 返回故事的全部双语字段
func StoryFieldNames() []string {
	return []string{FieldTitle, FieldGenre, FieldSynopsis, FieldMood}
}

// LocalizedField 实现 Localizable
func (s *StoryOption) LocalizedField(locale Locale, field string) string {
	if s == nil {
		return ""
	}
	return s.Localized.Get(locale, field)
}

// DefaultField 实现 Localizable
func (s *StoryOption) DefaultField(field string) string {
	if s == nil {
		return ""
	}
	switch field {
	case FieldTitle:
		return s.Title
	case FieldGenre:
		return s.Genre
	case FieldSynopsis:
		return s.Synopsis
	case FieldMood:
		return s.Mood
	default:
		return ""
	}
}

// SetDefaultField 按字段名写入默认字段
func (s *StoryOption) SetDefaultField(field, value string) {
	switch field {
	case FieldTitle:
		s.Title = value
	case FieldGenre:
		s.Genre = value
	case FieldSynopsis:
		s.Synopsis = value
	case FieldMood:
		s.Mood = value
	}
}

// Materialize 将默认字段切换为指定语言的译文（译文缺失时保留原值）
func (s *StoryOption) Materialize(locale Locale) {
	for _, field := range StoryFieldNames() {
		if v := Resolve(s, field, locale); v != "" {
			s.SetDefaultField(field, v)
		}
	}
}

// Clone 返回故事的深拷贝
func (s *StoryOption) Clone() StoryOption {
	out := *s
	out.Localized = s.Localized.Clone()
	return out
}
