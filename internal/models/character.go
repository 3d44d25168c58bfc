// internal/models/character.go
package models

// Character 的双语字段名
const (
	FieldName              = "name"
	FieldRole              = "role"
	FieldVisualDescription = "visualDescription"
	FieldPersonality       = "personality"
	FieldOutfit            = "outfit"
)

// Character 表示MV中的一个出场人物
// 花名册以位置作为身份；Keywords 与语言无关，整体随再生成结果覆盖
type Character struct {
	Name              string       `json:"name"`
	Role              string       `json:"role"`
	VisualDescription string       `json:"visual_description"`
	Personality       string       `json:"personality"`
	Outfit            string       `json:"outfit"`
	Keywords          []string     `json:"keywords,omitempty"`
	Localized         LocalizedSet `json:"localized,omitempty"`
}

// CharacterFieldNames 返回人物的全部双语字段
func CharacterFieldNames() []string {
	return []string{FieldName, FieldRole, FieldVisualDescription, FieldPersonality, FieldOutfit}
}

// LocalizedField 实现 Localizable
func (c *Character) LocalizedField(locale Locale, field string) string {
	if c == nil {
		return ""
	}
	return c.Localized.Get(locale, field)
}

// DefaultField 实现 Localizable
func (c *Character) DefaultField(field string) string {
	if c == nil {
		return ""
	}
	switch field {
	case FieldName:
		return c.Name
	case FieldRole:
		return c.Role
	case FieldVisualDescription:
		return c.VisualDescription
	case FieldPersonality:
		return c.Personality
	case FieldOutfit:
		return c.Outfit
	default:
		return ""
	}
}

// SetDefaultField 按字段名写入默认字段
func (c *Character) SetDefaultField(field, value string) {
	switch field {
	case FieldName:
		c.Name = value
	case FieldRole:
		c.Role = value
	case FieldVisualDescription:
		c.VisualDescription = value
	case FieldPersonality:
		c.Personality = value
	case FieldOutfit:
		c.Outfit = value
	}
}

// Materialize 将默认字段切换为指定语言的译文（译文缺失时保留原值）
func (c *Character) Materialize(locale Locale) {
	for _, field := range CharacterFieldNames() {
		if v := Resolve(c, field, locale); v != "" {
			c.SetDefaultField(field, v)
		}
	}
}

// Clone 返回人物的深拷贝
func (c *Character) Clone() Character {
	out := *c
	if c.Keywords != nil {
		out.Keywords = append([]string(nil), c.Keywords...)
	}
	out.Localized = c.Localized.Clone()
	return out
}
