// internal/models/scene_test.go
package models

import "testing"

func TestParseDurationSeconds(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"4.5s", 4.5, false},
		{"3s", 3, false},
		{"5", 5, false},
		{" 2 sec ", 2, false},
		{"10s", 10, false},
		{"0.5s", 0.5, false},
		{"", 0, true},
		{"fast", 0, true},
		{"~3s", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDurationSeconds(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDurationSeconds(%q) 应返回错误", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationSeconds(%q) 意外出错: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDurationSeconds(%q) = %v, 期望 %v", tt.raw, got, tt.want)
		}
	}
}

func TestSceneCloneIndependence(t *testing.T) {
	scene := Scene{
		ID:              NewSceneID(),
		SceneNumber:     1,
		GeneratedImages: []GeneratedImage{{Data: "aGVsbG8=", MimeType: "image/png"}},
		Localized:       make(LocalizedSet),
	}
	scene.Localized.Set(LocaleKorean, FieldVisualAction, "달리는 장면")

	cloned := scene.Clone()
	cloned.GeneratedImages = append(cloned.GeneratedImages, GeneratedImage{Data: "d29ybGQ="})
	cloned.Localized.Set(LocaleKorean, FieldVisualAction, "수정됨")

	if len(scene.GeneratedImages) != 1 {
		t.Error("克隆体追加图像不应影响原镜头")
	}
	if scene.Localized.Get(LocaleKorean, FieldVisualAction) != "달리는 장면" {
		t.Error("克隆体修改译文不应影响原镜头")
	}
}

func TestNewSceneIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSceneID()
		if id == "" || seen[id] {
			t.Fatalf("镜头ID应非空且不重复: %q", id)
		}
		seen[id] = true
	}
}
