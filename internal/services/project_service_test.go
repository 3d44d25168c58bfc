// internal/services/project_service_test.go
package services

import (
	"context"
	"testing"

	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/llm"
	"github.com/Corphon/MVDirectorAI/internal/models"
)

func newTestProjectService(fake *fakeProvider) *ProjectService {
	return NewProjectService(newTestGenerationService(fake))
}

// seedSelectedStory 直接把项目推进到已选定故事的状态
func seedSelectedStory(s *ProjectService) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project.Lyrics = "밤하늘의 별처럼 빛나는 너"
	s.project.Stories = append(s.project.Stories, models.StoryOption{
		Title: "별빛 아래", Synopsis: "밤길을 걷는 이야기", Mood: "몽환적",
	})
	idx := len(s.project.Stories) - 1
	s.project.SelectedStoryIndex = &idx
}

// seedDetailedScenes 注入详细分镜
func seedDetailedScenes(s *ProjectService, scenes ...models.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project.DetailedScenes = append(s.project.DetailedScenes[:0], scenes...)
}

func TestGenerateStoriesAppendsBatches(t *testing.T) {
	fake := &fakeProvider{responses: []string{storiesResponse}}
	s := newTestProjectService(fake)
	if err := s.SetLyrics("밤하늘의 별처럼"); err != nil {
		t.Fatal(err)
	}

	first, err := s.GenerateStories(context.Background())
	if err != nil {
		t.Fatalf("第一批生成失败: %v", err)
	}

	// 首批之后选择哨兵应是-1（非nil）
	p := s.Project()
	if p.SelectedStoryIndex == nil || *p.SelectedStoryIndex != models.SelectionNone {
		t.Fatalf("首批生成后选择应为-1哨兵，实际 %v", p.SelectedStoryIndex)
	}

	second, err := s.GenerateStories(context.Background())
	if err != nil {
		t.Fatalf("第二批生成失败: %v", err)
	}

	p = s.Project()
	if len(p.Stories) != len(first)+len(second) {
		t.Fatalf("再生成应追加而不是替换：期望%d个故事，实际%d", len(first)+len(second), len(p.Stories))
	}
	// 旧批次原样保留
	if p.Stories[0].Title != first[0].Title {
		t.Error("追加不应改动已有故事")
	}
}

func TestGenerateStoriesKeepsSelection(t *testing.T) {
	fake := &fakeProvider{responses: []string{storiesResponse}}
	s := newTestProjectService(fake)
	s.SetLyrics("가사")

	if _, err := s.GenerateStories(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectStory(1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GenerateStories(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := s.Project()
	if p.SelectedStoryIndex == nil || *p.SelectedStoryIndex != 1 {
		t.Fatalf("追加批次不应改变已有选择，实际 %v", p.SelectedStoryIndex)
	}
}

func TestGenerateRefusedWithoutCredential(t *testing.T) {
	s := NewProjectService(NewGenerationService(newUnreadyLLMService()))
	s.SetLyrics("가사")

	_, err := s.GenerateStories(context.Background())
	if !apperrors.IsMissingCredentialError(err) {
		t.Fatalf("凭证缺失时应直接拒绝，实际为 %v", err)
	}

	// 拒绝发生在进入加载态之前
	status := s.StageStatus(models.StageStories)
	if status.IsLoading {
		t.Error("凭证缺失的拒绝不应进入加载态")
	}
	if status.LastError != "" {
		t.Error("拒绝前置检查不应写入阶段错误")
	}
}

func TestAddCustomStoryAutoSelects(t *testing.T) {
	s := newTestProjectService(&fakeProvider{})
	s.SetLyrics("가사")

	story, err := s.AddCustomStory("나만의 이야기", "", "", "직접 쓴 줄거리")
	if err != nil {
		t.Fatalf("手工故事添加失败: %v", err)
	}
	if !story.IsCustom {
		t.Error("手工故事应标记为自定义")
	}
	if story.Genre != "Custom" || story.Mood != "Custom" {
		t.Errorf("空的类型与情绪应使用默认占位: %+v", story)
	}
	// 两种语言使用相同文本
	if story.Localized.Get(models.LocaleEnglish, models.FieldTitle) != "나만의 이야기" {
		t.Error("手工路径两种语言应使用相同文本")
	}

	p := s.Project()
	if p.SelectedStoryIndex == nil || *p.SelectedStoryIndex != len(p.Stories)-1 {
		t.Error("手工故事应自动选中")
	}
}

func TestSelectStoryBounds(t *testing.T) {
	s := newTestProjectService(&fakeProvider{})
	seedSelectedStory(s)

	if err := s.SelectStory(5); !apperrors.IsNotFoundError(err) {
		t.Errorf("越界索引应返回not_found，实际为 %v", err)
	}
	if err := s.SelectStory(models.SelectionNone); err != nil {
		t.Errorf("-1应被接受为清除选择: %v", err)
	}
	if s.Project().HasSelection() {
		t.Error("清除选择后不应有选中故事")
	}
}

const rosterResponse = `[
  {"name_ko":"지우","name_en":"Jiwoo","role_ko":"주인공","role_en":"Lead",
   "visualDescription_ko":"긴 검은 머리","visualDescription_en":"Long black hair",
   "personality_ko":"내성적","personality_en":"Introverted",
   "outfit_ko":"흰 원피스","outfit_en":"White dress","keywords":["kw1","kw2"]},
  {"name_ko":"민준","name_en":"Minjun","role_ko":"조연","role_en":"Support",
   "visualDescription_ko":"짧은 머리","visualDescription_en":"Short hair",
   "personality_ko":"활발함","personality_en":"Outgoing",
   "outfit_ko":"가죽 재킷","outfit_en":"Leather jacket","keywords":["kw3"]}
]`

func TestGenerateCharactersReplacesRoster(t *testing.T) {
	fake := &fakeProvider{responses: []string{rosterResponse, rosterResponse}}
	s := newTestProjectService(fake)
	seedSelectedStory(s)

	// 预置一个旧人物，整批生成后应消失
	s.AddCharacter(models.Character{Name: "옛인물"})

	roster, err := s.GenerateCharacters(context.Background())
	if err != nil {
		t.Fatalf("人物生成失败: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("期望2个人物，实际 %d", len(roster))
	}

	p := s.Project()
	for i := range p.Characters {
		if p.Characters[i].Name == "옛인물" {
			t.Fatal("整批生成应替换花名册，旧人物不应保留")
		}
	}
}

const singleCharacterResponse = `{"name_ko":"지우","name_en":"Jiwoo","role_ko":"주인공","role_en":"Lead",
 "visualDescription_ko":"은발 단발","visualDescription_en":"Silver bob cut",
 "personality_ko":"대담함","personality_en":"Bold",
 "outfit_ko":"검은 정장","outfit_en":"Black suit","keywords":["silver hair","black suit"]}`

func TestRegenerateCharacterReplacesSingleSlot(t *testing.T) {
	fake := &fakeProvider{responses: []string{rosterResponse, singleCharacterResponse}}
	s := newTestProjectService(fake)
	seedSelectedStory(s)

	if _, err := s.GenerateCharacters(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := s.Project().Characters

	updated, err := s.RegenerateCharacter(context.Background(), 0, "머리를 은발로", nil)
	if err != nil {
		t.Fatalf("定向再生成失败: %v", err)
	}
	if updated.VisualDescription != "은발 단발" {
		t.Errorf("再生成结果不符: %+v", updated)
	}

	after := s.Project().Characters
	if len(after) != len(before) {
		t.Fatal("定向再生成不应改变花名册长度")
	}
	if after[1].Name != before[1].Name {
		t.Error("其他槽位不应被改动")
	}
	// 关键词整体随结果覆盖
	if len(after[0].Keywords) != 2 || after[0].Keywords[0] != "silver hair" {
		t.Errorf("关键词应整体覆盖: %v", after[0].Keywords)
	}
}

func TestRegenerateCharacterIndexOutOfRange(t *testing.T) {
	s := newTestProjectService(&fakeProvider{})
	seedSelectedStory(s)

	_, err := s.RegenerateCharacter(context.Background(), 3, "지시", nil)
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("越界索引应返回not_found，实际为 %v", err)
	}
}

func TestManualCharacterEditWritesActiveLocale(t *testing.T) {
	s := newTestProjectService(&fakeProvider{})
	seedSelectedStory(s)
	s.SetActiveLocale(models.LocaleEnglish)

	if err := s.AddCharacter(models.Character{Name: "Jiwoo", Role: "Lead"}); err != nil {
		t.Fatal(err)
	}

	c := s.Project().Characters[0]
	if c.Localized.Get(models.LocaleEnglish, models.FieldName) != "Jiwoo" {
		t.Error("手工编辑应同步当前展示语言的译文")
	}
	if c.Localized.Get(models.LocaleKorean, models.FieldName) != "" {
		t.Error("手工编辑不应触碰另一种语言的译文")
	}
}

func TestGenerateDetailedStoryboardClearsPrompts(t *testing.T) {
	fake := &fakeProvider{responses: []string{sceneListResponse("3s", "4s")}}
	s := newTestProjectService(fake)
	seedSelectedStory(s)

	// 旧的详细分镜上已有提示词与图像
	seedDetailedScenes(s, models.Scene{
		ID: models.NewSceneID(), SceneNumber: 1, EstimatedDuration: "3s",
		ImagePrompt: "old prompt", VideoPrompt: "old video",
		GeneratedImages: []models.GeneratedImage{{Data: "aGk="}},
	})
	s.mu.Lock()
	s.project.BaseScenes = []models.Scene{{ID: models.NewSceneID(), SceneNumber: 1, EstimatedDuration: "7s"}}
	s.mu.Unlock()

	shots, err := s.GenerateDetailedStoryboard(context.Background())
	if err != nil {
		t.Fatalf("详细分镜生成失败: %v", err)
	}
	for _, shot := range shots {
		if shot.ImagePrompt != "" || shot.VideoPrompt != "" || len(shot.GeneratedImages) != 0 {
			t.Fatal("重建详细分镜后旧提示词与图像不应存活")
		}
	}
}

func TestApplyImagePromptsMatchingSemantics(t *testing.T) {
	// 条目3对不上任何镜头（丢弃），镜头2未被覆盖（保留旧值）
	response := `[{"sceneNumber":1,"imagePrompt":"new prompt one"},{"sceneNumber":3,"imagePrompt":"orphan"}]`
	fake := &fakeProvider{responses: []string{response}}
	s := newTestProjectService(fake)
	seedSelectedStory(s)
	seedDetailedScenes(s,
		models.Scene{ID: models.NewSceneID(), SceneNumber: 1, EstimatedDuration: "3s", ImagePrompt: "stale"},
		models.Scene{ID: models.NewSceneID(), SceneNumber: 2, EstimatedDuration: "4s", ImagePrompt: "keep me"},
	)

	if err := s.GenerateImagePrompts(context.Background()); err != nil {
		t.Fatalf("图像提示词生成失败: %v", err)
	}

	p := s.Project()
	if p.DetailedScenes[0].ImagePrompt != "new prompt one" {
		t.Errorf("匹配的镜头应更新提示词，实际为 %q", p.DetailedScenes[0].ImagePrompt)
	}
	if p.DetailedScenes[1].ImagePrompt != "keep me" {
		t.Errorf("未覆盖的镜头应保留旧提示词，实际为 %q", p.DetailedScenes[1].ImagePrompt)
	}
	if len(p.DetailedScenes) != 2 {
		t.Error("对不上号的条目不应新建镜头")
	}
}

func TestGenerateVideoPromptsPartialCoverage(t *testing.T) {
	response := `[{"sceneNumber":2,"videoPrompt":"slow pan"}]`
	fake := &fakeProvider{responses: []string{response}}
	s := newTestProjectService(fake)
	seedSelectedStory(s)
	seedDetailedScenes(s,
		models.Scene{ID: models.NewSceneID(), SceneNumber: 1, EstimatedDuration: "3s"},
		models.Scene{ID: models.NewSceneID(), SceneNumber: 2, EstimatedDuration: "4s"},
	)

	if err := s.GenerateVideoPrompts(context.Background()); err != nil {
		t.Fatalf("视频提示词生成失败: %v", err)
	}

	p := s.Project()
	if p.DetailedScenes[0].VideoPrompt != "" {
		t.Error("未覆盖的镜头不应被写入")
	}
	if p.DetailedScenes[1].VideoPrompt != "slow pan" {
		t.Errorf("匹配的镜头应更新提示词，实际为 %q", p.DetailedScenes[1].VideoPrompt)
	}
}

func TestRenderSceneImagesAppends(t *testing.T) {
	fake := &fakeProvider{images: []llm.GeneratedImageData{
		{Data: []byte("one"), MimeType: "image/png"},
		{Data: []byte("two"), MimeType: "image/png"},
	}}
	s := newTestProjectService(fake)
	seedSelectedStory(s)

	sceneID := models.NewSceneID()
	seedDetailedScenes(s, models.Scene{
		ID: sceneID, SceneNumber: 1, EstimatedDuration: "3s", ImagePrompt: "wide shot",
		GeneratedImages: []models.GeneratedImage{{Data: "existing1"}, {Data: "existing2"}, {Data: "existing3"}},
	})

	images, err := s.RenderSceneImages(context.Background(), sceneID, "16:9", 2, "", nil)
	if err != nil {
		t.Fatalf("渲染失败: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("期望返回2张图，实际 %d", len(images))
	}

	_, scene := s.Project().FindSceneByID(sceneID)
	if scene == nil {
		t.Fatal("镜头丢失")
	}
	if len(scene.GeneratedImages) != 5 {
		t.Fatalf("3张旧图加2张新图应共5张，实际 %d", len(scene.GeneratedImages))
	}
	if scene.GeneratedImages[0].Data != "existing1" {
		t.Error("旧图应保持在序列前部")
	}
}

func TestRenderSceneImagesUnknownScene(t *testing.T) {
	s := newTestProjectService(&fakeProvider{})
	seedSelectedStory(s)

	_, err := s.RenderSceneImages(context.Background(), "no-such-id", "16:9", 1, "", nil)
	if !apperrors.IsNotFoundError(err) {
		t.Fatalf("未知镜头应返回not_found，实际为 %v", err)
	}
}

func TestStageErrorRecordedInActiveLocale(t *testing.T) {
	// 生成端返回无法解析的内容，阶段状态应记录用户可读消息
	fake := &fakeProvider{responses: []string{"not json at all"}}
	s := newTestProjectService(fake)
	s.SetLyrics("가사")

	if _, err := s.GenerateStories(context.Background()); err == nil {
		t.Fatal("坏响应应返回错误")
	}

	status := s.StageStatus(models.StageStories)
	if status.IsLoading {
		t.Error("失败后加载态应被清除")
	}
	if status.LastError == "" {
		t.Error("失败应记录到阶段状态")
	}
	// 默认语言为韩语，消息应是韩文文案
	if status.LastError != UserFacingMessage(apperrors.NewEmptyResponseError(""), models.LocaleKorean) {
		t.Errorf("错误消息应按当前语言生成，实际为 %q", status.LastError)
	}
}

func TestSetActiveLocaleRematerializes(t *testing.T) {
	fake := &fakeProvider{responses: []string{storiesResponse}}
	s := newTestProjectService(fake)
	s.SetLyrics("가사")

	if _, err := s.GenerateStories(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.SetActiveLocale(models.LocaleEnglish); err != nil {
		t.Fatal(err)
	}
	if got := s.Project().Stories[0].Title; got != "Under Starlight" {
		t.Errorf("切换语言后默认字段应为英文译文，实际为 %q", got)
	}

	if err := s.SetActiveLocale(models.LocaleKorean); err != nil {
		t.Fatal(err)
	}
	if got := s.Project().Stories[0].Title; got != "별빛 아래" {
		t.Errorf("切回韩语后默认字段应恢复，实际为 %q", got)
	}

	if err := s.SetActiveLocale(models.Locale("ja")); !apperrors.IsValidationError(err) {
		t.Errorf("不支持的语言应返回校验错误，实际为 %v", err)
	}
}

func TestAdvanceAndGoToStageThroughService(t *testing.T) {
	s := newTestProjectService(&fakeProvider{})

	if _, err := s.Advance(); !apperrors.IsValidationError(err) {
		t.Fatalf("空项目前进应返回校验错误，实际为 %v", err)
	}

	s.SetLyrics("가사")
	p, err := s.Advance()
	if err != nil {
		t.Fatalf("歌词就绪后前进失败: %v", err)
	}
	if p.CurrentStage != models.StageStories {
		t.Fatalf("期望进入stories阶段，实际 %v", p.CurrentStage)
	}

	if _, err := s.GoToStage(models.StageStoryboard); !apperrors.IsValidationError(err) {
		t.Errorf("未到达的阶段跳转应返回校验错误，实际为 %v", err)
	}
	if _, err := s.GoToStage(models.StageLyrics); err != nil {
		t.Errorf("回退到已到达阶段应成功: %v", err)
	}
}
