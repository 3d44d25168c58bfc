// internal/services/generation_service_test.go
package services

import (
	"context"
	"strconv"
	"testing"

	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/llm"
	"github.com/Corphon/MVDirectorAI/internal/models"
)

func newTestGenerationService(fake *fakeProvider) *GenerationService {
	return NewGenerationService(newReadyLLMService(fake))
}

const storiesResponse = `[
  {"title_ko":"별빛 아래","title_en":"Under Starlight","genre_ko":"드라마","genre_en":"Drama",
   "synopsis_ko":"밤길을 걷는 이야기","synopsis_en":"A walk through the night","mood_ko":"몽환적","mood_en":"Dreamy"},
  {"title_ko":"도시의 춤","title_en":"City Dance","genre_ko":"퍼포먼스","genre_en":"Performance",
   "synopsis_ko":"거리에서 춤추는 이야기","synopsis_en":"Dancing in the streets","mood_ko":"활기찬","mood_en":"Energetic"}
]`

func TestGenerateStoriesSplitsLocales(t *testing.T) {
	g := newTestGenerationService(&fakeProvider{responses: []string{storiesResponse}})

	stories, err := g.GenerateStories(context.Background(), "가사", models.LocaleKorean)
	if err != nil {
		t.Fatalf("生成故事失败: %v", err)
	}
	if len(stories) != 2 {
		t.Fatalf("期望2个故事，实际 %d", len(stories))
	}

	first := stories[0]
	if first.Title != "별빛 아래" {
		t.Errorf("默认字段应取韩文译文，实际为 %q", first.Title)
	}
	if first.Localized.Get(models.LocaleEnglish, models.FieldTitle) != "Under Starlight" {
		t.Error("英文译文应保存在Localized里")
	}
	if first.Localized.Get(models.LocaleKorean, models.FieldSynopsis) != "밤길을 걷는 이야기" {
		t.Error("韩文译文应保存在Localized里")
	}
}

func TestGenerateStoriesEnglishDisplay(t *testing.T) {
	g := newTestGenerationService(&fakeProvider{responses: []string{storiesResponse}})

	stories, err := g.GenerateStories(context.Background(), "가사", models.LocaleEnglish)
	if err != nil {
		t.Fatalf("生成故事失败: %v", err)
	}
	if stories[0].Title != "Under Starlight" {
		t.Errorf("展示语言为en时默认字段应取英文，实际为 %q", stories[0].Title)
	}
}

func TestExpandStoryMarksCustom(t *testing.T) {
	single := `{"title_ko":"확장된 이야기","title_en":"Expanded Story","genre_ko":"판타지","genre_en":"Fantasy",
    "synopsis_ko":"키워드에서 확장","synopsis_en":"Expanded from keywords","mood_ko":"신비로운","mood_en":"Mystical"}`
	g := newTestGenerationService(&fakeProvider{responses: []string{single}})

	story, err := g.ExpandStoryFromKeywords(context.Background(), "밤, 별, 여행", "가사", models.LocaleKorean)
	if err != nil {
		t.Fatalf("扩写故事失败: %v", err)
	}
	if !story.IsCustom {
		t.Error("扩写得到的故事应标记为自定义")
	}
	if story.Title != "확장된 이야기" {
		t.Errorf("默认字段不符: %q", story.Title)
	}
}

func TestGenerateCharactersParsesKeywords(t *testing.T) {
	response := `[
  {"name_ko":"지우","name_en":"Jiwoo","role_ko":"주인공","role_en":"Protagonist",
   "visualDescription_ko":"긴 검은 머리","visualDescription_en":"Long black hair",
   "personality_ko":"내성적","personality_en":"Introverted",
   "outfit_ko":"흰 원피스","outfit_en":"White dress",
   "keywords":["long black hair","white dress","melancholic"]}
]`
	g := newTestGenerationService(&fakeProvider{responses: []string{response}})

	story := &models.StoryOption{Title: "별빛 아래", Synopsis: "밤길", Mood: "몽환적"}
	characters, err := g.GenerateCharacters(context.Background(), story, "가사", models.LocaleKorean)
	if err != nil {
		t.Fatalf("生成人物失败: %v", err)
	}
	if len(characters) != 1 {
		t.Fatalf("期望1个人物，实际 %d", len(characters))
	}
	c := characters[0]
	if c.Name != "지우" || len(c.Keywords) != 3 {
		t.Errorf("人物解析不符: %+v", c)
	}
	if c.Localized.Get(models.LocaleEnglish, models.FieldVisualDescription) != "Long black hair" {
		t.Error("英文外貌描述应保存在Localized里")
	}
}

func sceneListResponse(durations ...string) string {
	out := "["
	for i, d := range durations {
		if i > 0 {
			out += ","
		}
		out += sceneListItem(i+1, d)
	}
	return out + "]"
}

func sceneListItem(n int, duration string) string {
	return `{"sceneNumber":` + strconv.Itoa(n) + `,"lyricsSegment":"가사","visualAction_ko":"행동","visualAction_en":"Action",` +
		`"moodAndLighting_ko":"분위기","moodAndLighting_en":"Mood Lighting","cameraMovement_ko":"카메라","cameraMovement_en":"Camera",` +
		`"estimatedDuration":"` + duration + `"}`
}

func TestGenerateStoryboardRenumbersScenes(t *testing.T) {
	// 生成端返回乱序编号，网关应按列表位置重排
	response := `[` + sceneListItem(5, "8s") + `,` + sceneListItem(2, "6s") + `]`
	g := newTestGenerationService(&fakeProvider{responses: []string{response}})

	story := &models.StoryOption{Title: "T", Synopsis: "S"}
	scenes, err := g.GenerateStoryboard(context.Background(), "가사", story, []models.Character{{Name: "지우"}}, models.LocaleKorean)
	if err != nil {
		t.Fatalf("生成分镜失败: %v", err)
	}

	for i, s := range scenes {
		if s.SceneNumber != i+1 {
			t.Errorf("场景编号应从1连续递增，位置%d的编号为%d", i, s.SceneNumber)
		}
		if s.ID == "" {
			t.Error("每个场景都应分配稳定ID")
		}
	}
}

func TestGenerateDetailedStoryboardEnforcesDurationCap(t *testing.T) {
	g := newTestGenerationService(&fakeProvider{responses: []string{sceneListResponse("3s", "7s")}})

	story := &models.StoryOption{Title: "T"}
	base := []models.Scene{{SceneNumber: 1, EstimatedDuration: "8s"}}
	_, err := g.GenerateDetailedStoryboard(context.Background(), base, story, nil, models.LocaleKorean)
	if !apperrors.IsMalformedResponseError(err) {
		t.Fatalf("超过5秒的镜头应返回malformed_response错误，实际为 %v", err)
	}
}

func TestGenerateDetailedStoryboardRejectsUnparsableDuration(t *testing.T) {
	g := newTestGenerationService(&fakeProvider{responses: []string{sceneListResponse("quick")}})

	story := &models.StoryOption{Title: "T"}
	base := []models.Scene{{SceneNumber: 1, EstimatedDuration: "8s"}}
	_, err := g.GenerateDetailedStoryboard(context.Background(), base, story, nil, models.LocaleKorean)
	if !apperrors.IsMalformedResponseError(err) {
		t.Fatalf("无法解析的时长应返回malformed_response错误，实际为 %v", err)
	}
}

func TestGenerateDetailedStoryboardAcceptsBoundary(t *testing.T) {
	g := newTestGenerationService(&fakeProvider{responses: []string{sceneListResponse("5s", "4.5s", "0.5s")}})

	story := &models.StoryOption{Title: "T"}
	base := []models.Scene{{SceneNumber: 1, EstimatedDuration: "10s"}}
	shots, err := g.GenerateDetailedStoryboard(context.Background(), base, story, nil, models.LocaleKorean)
	if err != nil {
		t.Fatalf("恰好5秒的镜头应被接受: %v", err)
	}
	if len(shots) != 3 {
		t.Fatalf("期望3个镜头，实际 %d", len(shots))
	}
	for i, s := range shots {
		if s.SceneNumber != i+1 {
			t.Errorf("镜头编号应从1连续递增，位置%d的编号为%d", i, s.SceneNumber)
		}
	}
}

func TestGenerateImagePromptsMapsBySceneNumber(t *testing.T) {
	response := `[{"sceneNumber":2,"imagePrompt":"cinematic close-up"},{"sceneNumber":1,"imagePrompt":"wide shot"}]`
	g := newTestGenerationService(&fakeProvider{responses: []string{response}})

	scenes := []models.Scene{
		{SceneNumber: 1, VisualAction: "걷기"},
		{SceneNumber: 2, VisualAction: "달리기"},
	}
	prompts, err := g.GenerateImagePrompts(context.Background(), scenes, &models.StoryOption{Mood: "몽환적"})
	if err != nil {
		t.Fatalf("生成图像提示词失败: %v", err)
	}
	if len(prompts) != 2 {
		t.Fatalf("期望2条提示词，实际 %d", len(prompts))
	}
	if prompts[0].SceneNumber != 2 || prompts[0].Prompt != "cinematic close-up" {
		t.Errorf("提示词条目应保留生成端的场景编号: %+v", prompts[0])
	}
}

func TestRenderSceneImagesValidation(t *testing.T) {
	fake := &fakeProvider{images: []llm.GeneratedImageData{{Data: []byte("img"), MimeType: "image/png"}}}
	g := newTestGenerationService(fake)

	scene := &models.Scene{ID: models.NewSceneID(), ImagePrompt: "wide shot"}

	// 非法宽高比
	if _, err := g.RenderSceneImages(context.Background(), scene, "4:3", 1, "", nil); !apperrors.IsValidationError(err) {
		t.Errorf("非法宽高比应返回校验错误，实际为 %v", err)
	}

	// 数量越界
	if _, err := g.RenderSceneImages(context.Background(), scene, "16:9", 21, "", nil); !apperrors.IsValidationError(err) {
		t.Errorf("数量超过20应返回校验错误，实际为 %v", err)
	}
	if _, err := g.RenderSceneImages(context.Background(), scene, "16:9", 0, "", nil); !apperrors.IsValidationError(err) {
		t.Errorf("数量为0应返回校验错误，实际为 %v", err)
	}

	// 缺少提示词
	noPrompt := &models.Scene{ID: models.NewSceneID()}
	if _, err := g.RenderSceneImages(context.Background(), noPrompt, "16:9", 1, "", nil); !apperrors.IsValidationError(err) {
		t.Errorf("缺少图像提示词应返回校验错误，实际为 %v", err)
	}

	// 正常渲染并做base64编码
	images, err := g.RenderSceneImages(context.Background(), scene, "16:9", 1, "", nil)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if len(images) != 1 || images[0].Data == "" || images[0].MimeType != "image/png" {
		t.Fatalf("渲染结果不符: %+v", images)
	}
}
