// internal/models/locale.go
package models

// Locale 界面/内容语言
type Locale string

const (
	LocaleKorean  Locale = "ko"
	LocaleEnglish Locale = "en"
)

// DefaultLocale 首批生成与新项目的主语言
const DefaultLocale = LocaleKorean

// SupportedLocales 返回全部受支持的语言
func SupportedLocales() []Locale {
	return []Locale{LocaleKorean, LocaleEnglish}
}

// IsValidLocale 检查语言标识是否受支持
func IsValidLocale(locale Locale) bool {
	for _, l := range SupportedLocales() {
		if l == locale {
			return true
		}
	}
	return false
}

// LocalizedSet 按语言存放实体文本字段的译文
type LocalizedSet map[Locale]map[string]string

// Get 读取某语言下某字段的译文，缺失时返回空串
func (ls LocalizedSet) Get(locale Locale, field string) string {
	if ls == nil {
		return ""
	}
	fields, ok := ls[locale]
	if !ok {
		return ""
	}
	return fields[field]
}

// Set 写入某语言下某字段的译文
func (ls LocalizedSet) Set(locale Locale, field, value string) {
	fields, ok := ls[locale]
	if !ok {
		fields = make(map[string]string)
		ls[locale] = fields
	}
	fields[field] = value
}

// Clone 返回译文集合的深拷贝
func (ls LocalizedSet) Clone() LocalizedSet {
	if ls == nil {
		return nil
	}
	out := make(LocalizedSet, len(ls))
	for locale, fields := range ls {
		copied := make(map[string]string, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		out[locale] = copied
	}
	return out
}

// Localizable 双语实体的统一读取口径
type Localizable interface {
	LocalizedField(locale Locale, field string) string
	DefaultField(field string) string
}

// Resolve 按回退规则取值：指定语言译文 → 默认字段 → 空串
func Resolve(entity Localizable, field string, locale Locale) string {
	if entity == nil {
		return ""
	}
	if v := entity.LocalizedField(locale, field); v != "" {
		return v
	}
	return entity.DefaultField(field)
}
