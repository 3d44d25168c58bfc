// internal/models/locale_test.go
package models

import "testing"

func TestResolveFallback(t *testing.T) {
	story := &StoryOption{
		Title:     "기본 제목",
		Localized: make(LocalizedSet),
	}
	story.Localized.Set(LocaleEnglish, FieldTitle, "English Title")

	// 有译文时返回译文
	if got := Resolve(story, FieldTitle, LocaleEnglish); got != "English Title" {
		t.Errorf("期望返回英文译文，实际为 %q", got)
	}

	// 无译文时回退到默认字段
	if got := Resolve(story, FieldTitle, LocaleKorean); got != "기본 제목" {
		t.Errorf("期望回退到默认字段，实际为 %q", got)
	}

	// 译文与默认字段都缺失时返回空串
	if got := Resolve(story, FieldGenre, LocaleEnglish); got != "" {
		t.Errorf("期望空串，实际为 %q", got)
	}
}

func TestResolveNilEntity(t *testing.T) {
	var story *StoryOption
	if got := Resolve(story, FieldTitle, LocaleKorean); got != "" {
		t.Errorf("nil实体应返回空串，实际为 %q", got)
	}
}

func TestLocalizedSetGetOnNil(t *testing.T) {
	var ls LocalizedSet
	if got := ls.Get(LocaleKorean, FieldTitle); got != "" {
		t.Errorf("nil集合应返回空串，实际为 %q", got)
	}
}

func TestLocalizedSetClone(t *testing.T) {
	ls := make(LocalizedSet)
	ls.Set(LocaleKorean, FieldTitle, "원본")

	cloned := ls.Clone()
	cloned.Set(LocaleKorean, FieldTitle, "복제")

	if ls.Get(LocaleKorean, FieldTitle) != "원본" {
		t.Error("克隆后的修改不应影响原集合")
	}
}

func TestIsValidLocale(t *testing.T) {
	if !IsValidLocale(LocaleKorean) || !IsValidLocale(LocaleEnglish) {
		t.Error("ko和en都应是受支持的语言")
	}
	if IsValidLocale(Locale("ja")) {
		t.Error("未声明的语言不应通过校验")
	}
}

func TestMaterializeKeepsValueWhenTranslationMissing(t *testing.T) {
	c := Character{
		Name:      "Default Name",
		Localized: make(LocalizedSet),
	}
	c.Localized.Set(LocaleKorean, FieldName, "한국어 이름")

	c.Materialize(LocaleKorean)
	if c.Name != "한국어 이름" {
		t.Errorf("默认字段应切换为韩文译文，实际为 %q", c.Name)
	}

	// 英文译文缺失，切换回英文时保留当前值
	c.Materialize(LocaleEnglish)
	if c.Name != "한국어 이름" {
		t.Errorf("译文缺失时默认字段不应被清空，实际为 %q", c.Name)
	}
}
