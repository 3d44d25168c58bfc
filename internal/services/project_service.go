// internal/services/project_service.go
package services

import (
	"context"
	"sync"

	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/llm"
	"github.com/Corphon/MVDirectorAI/internal/models"
	"github.com/Corphon/MVDirectorAI/internal/utils"
)

// UpdateNotifier 阶段产物变化时的事件出口（由websocket层实现）
type UpdateNotifier interface {
	NotifyProjectEvent(stage models.Stage, event string, sceneID string)
}

// StageStatus 单个阶段控制器对外暴露的状态
type StageStatus struct {
	IsLoading bool   `json:"is_loading"`
	LastError string `json:"last_error,omitempty"`
}

// stageState 阶段控制器的内部可变状态
type stageState struct {
	isLoading bool
	lastError string
}

// ProjectService 持有单一会话的项目状态聚合，并实现各阶段控制器的语义
// 聚合只有一把互斥锁；生成调用在锁外进行，完成后以最小切片更新的方式原子回写，
// 不同槽位（不同镜头、不同人物）的并发完成互不影响
type ProjectService struct {
	mu       sync.Mutex
	project  *models.Project
	stages   map[models.Stage]*stageState
	gen      *GenerationService
	notifier UpdateNotifier
}

// NewProjectService 创建项目服务
func NewProjectService(gen *GenerationService) *ProjectService {
	return &ProjectService{
		project: models.NewProject(),
		stages:  make(map[models.Stage]*stageState),
		gen:     gen,
	}
}

// SetNotifier 绑定事件出口
func (s *ProjectService) SetNotifier(notifier UpdateNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = notifier
}

// notify 推送阶段事件（未绑定时为空操作）
func (s *ProjectService) notify(stage models.Stage, event, sceneID string) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier != nil {
		notifier.NotifyProjectEvent(stage, event, sceneID)
	}
}

// Project 返回聚合的深拷贝快照
func (s *ProjectService) Project() *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cloneProjectLocked()
}

func (s *ProjectService) cloneProjectLocked() *models.Project {
	p := s.project
	out := &models.Project{
		Lyrics:          p.Lyrics,
		CurrentStage:    p.CurrentStage,
		MaxReachedStage: p.MaxReachedStage,
		ActiveLocale:    p.ActiveLocale,
	}
	if p.SelectedStoryIndex != nil {
		idx := *p.SelectedStoryIndex
		out.SelectedStoryIndex = &idx
	}
	out.Stories = make([]models.StoryOption, 0, len(p.Stories))
	for i := range p.Stories {
		out.Stories = append(out.Stories, p.Stories[i].Clone())
	}
	out.Characters = make([]models.Character, 0, len(p.Characters))
	for i := range p.Characters {
		out.Characters = append(out.Characters, p.Characters[i].Clone())
	}
	out.BaseScenes = make([]models.Scene, 0, len(p.BaseScenes))
	for i := range p.BaseScenes {
		out.BaseScenes = append(out.BaseScenes, p.BaseScenes[i].Clone())
	}
	out.DetailedScenes = make([]models.Scene, 0, len(p.DetailedScenes))
	for i := range p.DetailedScenes {
		out.DetailedScenes = append(out.DetailedScenes, p.DetailedScenes[i].Clone())
	}
	return out
}

// ---- 阶段状态管理 ----

func (s *ProjectService) stageStateLocked(stage models.Stage) *stageState {
	st, ok := s.stages[stage]
	if !ok {
		st = &stageState{}
		s.stages[stage] = st
	}
	return st
}

// StageStatus 返回指定阶段的加载与错误状态
func (s *ProjectService) StageStatus(stage models.Stage) StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stageStateLocked(stage)
	return StageStatus{IsLoading: st.isLoading, LastError: st.lastError}
}

// beginGeneration 进入生成前的统一闸门
// 凭证不可用时直接拒绝，保证isLoading从不切换为true
func (s *ProjectService) beginGeneration(stage models.Stage) error {
	if ready, state := s.gen.LLMService.GetProviderStatus(); !ready {
		return apperrors.NewMissingCredentialError(state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stageStateLocked(stage)
	if st.isLoading {
		return apperrors.NewValidationError("该阶段已有生成任务进行中", nil)
	}
	st.isLoading = true
	st.lastError = ""
	return nil
}

// finishGeneration 生成结束后的统一收尾：清除加载态，失败时记录用户可读消息
// 错误被吸收到阶段状态里，不会越过阶段边界或污染其他阶段的数据
func (s *ProjectService) finishGeneration(stage models.Stage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stageStateLocked(stage)
	st.isLoading = false
	if err != nil {
		st.lastError = UserFacingMessage(err, s.project.ActiveLocale)
		utils.GetLogger().Error("stage generation failed", map[string]interface{}{
			"stage": stage.String(), "error": err.Error(),
		})
	}
}

// ---- 歌词与语言 ----

// SetLyrics 设置歌词（歌词阶段的产物）
func (s *ProjectService) SetLyrics(lyrics string) error {
	if lyrics == "" {
		return apperrors.NewValidationError("가사를 입력해주세요", nil)
	}

	s.mu.Lock()
	s.project.Lyrics = lyrics
	s.mu.Unlock()

	s.notify(models.StageLyrics, "updated", "")
	return nil
}

// SetActiveLocale 切换展示语言，并把所有实体的默认字段重排为该语言的译文
func (s *ProjectService) SetActiveLocale(locale models.Locale) error {
	if !models.IsValidLocale(locale) {
		return apperrors.NewValidationError("不支持的语言: "+string(locale), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.project.ActiveLocale = locale
	for i := range s.project.Stories {
		s.project.Stories[i].Materialize(locale)
	}
	for i := range s.project.Characters {
		s.project.Characters[i].Materialize(locale)
	}
	for i := range s.project.BaseScenes {
		s.project.BaseScenes[i].Materialize(locale)
	}
	for i := range s.project.DetailedScenes {
		s.project.DetailedScenes[i].Materialize(locale)
	}
	return nil
}

// activeLocale 读取当前展示语言
func (s *ProjectService) activeLocale() models.Locale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project.ActiveLocale
}

// ---- 故事阶段 ----

// GenerateStories 生成一批故事概念并追加到列表（从不替换，旧概念保持可选）
func (s *ProjectService) GenerateStories(ctx context.Context) ([]models.StoryOption, error) {
	s.mu.Lock()
	lyrics := s.project.Lyrics
	firstBatch := len(s.project.Stories) == 0
	locale := s.project.ActiveLocale
	s.mu.Unlock()

	if lyrics == "" {
		return nil, apperrors.NewValidationError("가사가 없습니다", nil)
	}

	if err := s.beginGeneration(models.StageStories); err != nil {
		return nil, err
	}

	// 首批固定用主语言填充默认字段，之后跟随当前展示语言
	displayLocale := locale
	if firstBatch {
		displayLocale = models.DefaultLocale
	}

	batch, err := s.gen.GenerateStories(ctx, lyrics, displayLocale)
	s.finishGeneration(models.StageStories, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.project.Stories = append(s.project.Stories, batch...)
	if s.project.SelectedStoryIndex == nil {
		none := models.SelectionNone
		s.project.SelectedStoryIndex = &none
	}
	s.mu.Unlock()

	s.notify(models.StageStories, "generated", "")
	return batch, nil
}

// SelectStory 显式选择一个故事；-1 表示清除选择
func (s *ProjectService) SelectStory(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index != models.SelectionNone && (index < 0 || index >= len(s.project.Stories)) {
		return apperrors.NewNotFoundError("故事索引越界", nil)
	}

	selected := index
	s.project.SelectedStoryIndex = &selected
	return nil
}

// AddCustomStory 手工录入一个自定义故事，追加并自动选中
// 手工路径两种语言使用相同文本，避免卡在翻译上
func (s *ProjectService) AddCustomStory(title, genre, mood, synopsis string) (models.StoryOption, error) {
	if title == "" || synopsis == "" {
		return models.StoryOption{}, apperrors.NewValidationError("标题和梗概不能为空", nil)
	}
	if genre == "" {
		genre = "Custom"
	}
	if mood == "" {
		mood = "Custom"
	}

	story := models.StoryOption{
		Title:     title,
		Genre:     genre,
		Synopsis:  synopsis,
		Mood:      mood,
		IsCustom:  true,
		Localized: make(models.LocalizedSet),
	}
	for _, locale := range models.SupportedLocales() {
		for _, field := range models.StoryFieldNames() {
			story.Localized.Set(locale, field, story.DefaultField(field))
		}
	}

	s.mu.Lock()
	s.project.Stories = append(s.project.Stories, story)
	selected := len(s.project.Stories) - 1
	s.project.SelectedStoryIndex = &selected
	s.mu.Unlock()

	s.notify(models.StageStories, "added", "")
	return story, nil
}

// ExpandCustomStory 用AI把关键词扩写为完整故事，追加并自动选中
func (s *ProjectService) ExpandCustomStory(ctx context.Context, keywords string) (models.StoryOption, error) {
	if keywords == "" {
		return models.StoryOption{}, apperrors.NewValidationError("关键词不能为空", nil)
	}

	s.mu.Lock()
	lyrics := s.project.Lyrics
	s.mu.Unlock()

	if err := s.beginGeneration(models.StageStories); err != nil {
		return models.StoryOption{}, err
	}

	story, err := s.gen.ExpandStoryFromKeywords(ctx, keywords, lyrics, s.activeLocale())
	s.finishGeneration(models.StageStories, err)
	if err != nil {
		return models.StoryOption{}, err
	}

	s.mu.Lock()
	s.project.Stories = append(s.project.Stories, story)
	selected := len(s.project.Stories) - 1
	s.project.SelectedStoryIndex = &selected
	s.mu.Unlock()

	s.notify(models.StageStories, "added", "")
	return story, nil
}

// ---- 人物阶段 ----

// GenerateCharacters 生成人物并整体替换花名册
func (s *ProjectService) GenerateCharacters(ctx context.Context) ([]models.Character, error) {
	s.mu.Lock()
	story := s.project.SelectedStory()
	if story != nil {
		cloned := story.Clone()
		story = &cloned
	}
	lyrics := s.project.Lyrics
	s.mu.Unlock()

	if story == nil {
		return nil, apperrors.NewValidationError("还没有选定故事", nil)
	}

	if err := s.beginGeneration(models.StageCharacters); err != nil {
		return nil, err
	}

	roster, err := s.gen.GenerateCharacters(ctx, story, lyrics, s.activeLocale())
	s.finishGeneration(models.StageCharacters, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.project.Characters = roster
	s.mu.Unlock()

	s.notify(models.StageCharacters, "generated", "")
	return roster, nil
}

// RegenerateCharacter 定向再生成单个人物，只替换该槽位（含关键词在内全部覆盖）
func (s *ProjectService) RegenerateCharacter(ctx context.Context, index int,
	instruction string, referenceImage *llm.ImageAttachment) (models.Character, error) {

	s.mu.Lock()
	if index < 0 || index >= len(s.project.Characters) {
		s.mu.Unlock()
		return models.Character{}, apperrors.NewNotFoundError("人物索引越界", nil)
	}
	current := s.project.Characters[index].Clone()
	s.mu.Unlock()

	if err := s.beginGeneration(models.StageCharacters); err != nil {
		return models.Character{}, err
	}

	updated, err := s.gen.RegenerateCharacter(ctx, &current, instruction, referenceImage, s.activeLocale())
	s.finishGeneration(models.StageCharacters, err)
	if err != nil {
		return models.Character{}, err
	}

	s.mu.Lock()
	if index >= len(s.project.Characters) {
		s.mu.Unlock()
		return models.Character{}, apperrors.NewNotFoundError("人物在生成期间被删除", nil)
	}
	s.project.Characters[index] = updated
	s.mu.Unlock()

	s.notify(models.StageCharacters, "regenerated", "")
	return updated, nil
}

// applyManualCharacterEdit 手工编辑的语言策略：
// 默认字段与当前展示语言的译文同步更新，另一种语言保持原值
func applyManualCharacterEdit(c *models.Character, locale models.Locale) {
	if c.Localized == nil {
		c.Localized = make(models.LocalizedSet)
	}
	for _, field := range models.CharacterFieldNames() {
		c.Localized.Set(locale, field, c.DefaultField(field))
	}
}

// AddCharacter 手工添加人物，不经过生成端
func (s *ProjectService) AddCharacter(character models.Character) error {
	if character.Name == "" {
		return apperrors.NewValidationError("人物名称不能为空", nil)
	}

	s.mu.Lock()
	applyManualCharacterEdit(&character, s.project.ActiveLocale)
	s.project.Characters = append(s.project.Characters, character)
	s.mu.Unlock()

	s.notify(models.StageCharacters, "added", "")
	return nil
}

// UpdateCharacter 手工编辑人物字段，不经过生成端
func (s *ProjectService) UpdateCharacter(index int, updated models.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.project.Characters) {
		return apperrors.NewNotFoundError("人物索引越界", nil)
	}

	existing := &s.project.Characters[index]
	for _, field := range models.CharacterFieldNames() {
		if v := updated.DefaultField(field); v != "" {
			existing.SetDefaultField(field, v)
		}
	}
	if updated.Keywords != nil {
		existing.Keywords = append([]string(nil), updated.Keywords...)
	}
	applyManualCharacterEdit(existing, s.project.ActiveLocale)
	return nil
}

// DeleteCharacter 删除人物
func (s *ProjectService) DeleteCharacter(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.project.Characters) {
		return apperrors.NewNotFoundError("人物索引越界", nil)
	}

	s.project.Characters = append(s.project.Characters[:index], s.project.Characters[index+1:]...)
	return nil
}

// ---- 分镜阶段 ----

// GenerateStoryboard 生成粗分镜，整体替换
func (s *ProjectService) GenerateStoryboard(ctx context.Context) ([]models.Scene, error) {
	s.mu.Lock()
	story := s.project.SelectedStory()
	if story != nil {
		cloned := story.Clone()
		story = &cloned
	}
	lyrics := s.project.Lyrics
	roster := make([]models.Character, 0, len(s.project.Characters))
	for i := range s.project.Characters {
		roster = append(roster, s.project.Characters[i].Clone())
	}
	s.mu.Unlock()

	if story == nil {
		return nil, apperrors.NewValidationError("还没有选定故事", nil)
	}
	if len(roster) == 0 {
		return nil, apperrors.NewValidationError("还没有人物", nil)
	}

	if err := s.beginGeneration(models.StageStoryboard); err != nil {
		return nil, err
	}

	scenes, err := s.gen.GenerateStoryboard(ctx, lyrics, story, roster, s.activeLocale())
	s.finishGeneration(models.StageStoryboard, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.project.BaseScenes = scenes
	s.mu.Unlock()

	s.notify(models.StageStoryboard, "generated", "")
	return scenes, nil
}

// GenerateDetailedStoryboard 把粗分镜拆分为≤5秒的镜头列表
// 旧的详细列表（连同其上挂的图像/视频提示词）被整体丢弃，从不合并
func (s *ProjectService) GenerateDetailedStoryboard(ctx context.Context) ([]models.Scene, error) {
	s.mu.Lock()
	story := s.project.SelectedStory()
	if story != nil {
		cloned := story.Clone()
		story = &cloned
	}
	base := make([]models.Scene, 0, len(s.project.BaseScenes))
	for i := range s.project.BaseScenes {
		base = append(base, s.project.BaseScenes[i].Clone())
	}
	roster := make([]models.Character, 0, len(s.project.Characters))
	for i := range s.project.Characters {
		roster = append(roster, s.project.Characters[i].Clone())
	}
	s.mu.Unlock()

	if story == nil {
		return nil, apperrors.NewValidationError("还没有选定故事", nil)
	}
	if len(base) == 0 {
		return nil, apperrors.NewValidationError("还没有粗分镜", nil)
	}

	if err := s.beginGeneration(models.StageDetailedStoryboard); err != nil {
		return nil, err
	}

	shots, err := s.gen.GenerateDetailedStoryboard(ctx, base, story, roster, s.activeLocale())
	s.finishGeneration(models.StageDetailedStoryboard, err)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.project.DetailedScenes = shots
	s.mu.Unlock()

	s.notify(models.StageDetailedStoryboard, "generated", "")
	return shots, nil
}

// ---- 提示词阶段 ----

// applyPromptsBySceneNumber 按场景编号把提示词条目回填到详细分镜
// 对不上号的条目丢弃（非致命），未覆盖的镜头保持原值，不新建镜头
func (s *ProjectService) applyPromptsBySceneNumber(prompts []ScenePrompt, setPrompt func(*models.Scene, string)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	byNumber := make(map[int]*models.Scene, len(s.project.DetailedScenes))
	for i := range s.project.DetailedScenes {
		byNumber[s.project.DetailedScenes[i].SceneNumber] = &s.project.DetailedScenes[i]
	}

	matched := 0
	for _, p := range prompts {
		scene, ok := byNumber[p.SceneNumber]
		if !ok {
			dropErr := apperrors.NewUnmatchedArtifactError("提示词条目无法对应到镜头")
			utils.GetLogger().Warn(dropErr.Message, map[string]interface{}{
				"scene_number": p.SceneNumber,
			})
			utils.GetMetricsCollector().IncrementCounter("prompts.unmatched")
			continue
		}
		setPrompt(scene, p.Prompt)
		matched++
	}
	return matched
}

// GenerateImagePrompts 为每个镜头生成文生图提示词
func (s *ProjectService) GenerateImagePrompts(ctx context.Context) error {
	s.mu.Lock()
	story := s.project.SelectedStory()
	if story != nil {
		cloned := story.Clone()
		story = &cloned
	}
	shots := make([]models.Scene, 0, len(s.project.DetailedScenes))
	for i := range s.project.DetailedScenes {
		shots = append(shots, s.project.DetailedScenes[i].Clone())
	}
	s.mu.Unlock()

	if story == nil {
		return apperrors.NewValidationError("还没有选定故事", nil)
	}
	if len(shots) == 0 {
		return apperrors.NewValidationError("还没有详细分镜", nil)
	}

	if err := s.beginGeneration(models.StageImagePrompts); err != nil {
		return err
	}

	prompts, err := s.gen.GenerateImagePrompts(ctx, shots, story)
	s.finishGeneration(models.StageImagePrompts, err)
	if err != nil {
		return err
	}

	matched := s.applyPromptsBySceneNumber(prompts, func(scene *models.Scene, prompt string) {
		scene.ImagePrompt = prompt
	})
	utils.GetLogger().Info("image prompts applied", map[string]interface{}{
		"matched": matched, "returned": len(prompts),
	})

	s.notify(models.StageImagePrompts, "generated", "")
	return nil
}

// GenerateVideoPrompts 为每个镜头生成文生视频提示词
func (s *ProjectService) GenerateVideoPrompts(ctx context.Context) error {
	s.mu.Lock()
	shots := make([]models.Scene, 0, len(s.project.DetailedScenes))
	for i := range s.project.DetailedScenes {
		shots = append(shots, s.project.DetailedScenes[i].Clone())
	}
	s.mu.Unlock()

	if len(shots) == 0 {
		return apperrors.NewValidationError("还没有详细分镜", nil)
	}

	if err := s.beginGeneration(models.StageVideoPrompts); err != nil {
		return err
	}

	prompts, err := s.gen.GenerateVideoPrompts(ctx, shots)
	s.finishGeneration(models.StageVideoPrompts, err)
	if err != nil {
		return err
	}

	matched := s.applyPromptsBySceneNumber(prompts, func(scene *models.Scene, prompt string) {
		scene.VideoPrompt = prompt
	})
	utils.GetLogger().Info("video prompts applied", map[string]interface{}{
		"matched": matched, "returned": len(prompts),
	})

	s.notify(models.StageVideoPrompts, "generated", "")
	return nil
}

// RenderSceneImages 为单个镜头渲染静帧并追加到其图像序列
// 以稳定ID定位镜头；不同镜头的渲染可以并发进行，互不阻塞
func (s *ProjectService) RenderSceneImages(ctx context.Context, sceneID string,
	aspectRatio string, count int, model string, referenceImages []llm.ImageAttachment) ([]models.GeneratedImage, error) {

	s.mu.Lock()
	_, scene := s.project.FindSceneByID(sceneID)
	if scene == nil {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("镜头不存在: "+sceneID, nil)
	}
	snapshot := scene.Clone()
	s.mu.Unlock()

	images, err := s.gen.RenderSceneImages(ctx, &snapshot, aspectRatio, count, model, referenceImages)
	if err != nil {
		return nil, err
	}

	// 追加写回；列表可能在渲染期间被重建，此时结果作废
	s.mu.Lock()
	_, scene = s.project.FindSceneByID(sceneID)
	if scene == nil {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("镜头在渲染期间被移除", nil)
	}
	scene.GeneratedImages = append(scene.GeneratedImages, images...)
	s.mu.Unlock()

	s.notify(models.StageImagePrompts, "images_rendered", sceneID)
	return images, nil
}

// ---- 阶段导航 ----

// Advance 前进一个阶段
func (s *ProjectService) Advance() (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.project.Advance() {
		return nil, apperrors.NewValidationError("当前阶段还不满足前进条件", nil)
	}
	return s.cloneProjectLocked(), nil
}

// GoToStage 回退/跳转到已到达过的阶段，不清除任何数据
func (s *ProjectService) GoToStage(stage models.Stage) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.project.GoToStage(stage) {
		return nil, apperrors.NewValidationError("目标阶段尚不可达", nil)
	}
	return s.cloneProjectLocked(), nil
}

// ---- 用户可读错误消息 ----

// UserFacingMessage 把网关错误转换为当前语言的用户可读消息
func UserFacingMessage(err error, locale models.Locale) string {
	ko := locale == models.LocaleKorean

	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeMissingCredential:
		if ko {
			return "API 키가 설정되지 않았습니다. 설정에서 키를 등록해주세요."
		}
		return "No API key is configured. Please register a key in settings."
	case apperrors.ErrorTypeEmptyResponse:
		if ko {
			return "AI가 응답을 반환하지 않았습니다. 다시 시도해주세요."
		}
		return "The AI returned no content. Please try again."
	case apperrors.ErrorTypeMalformedResponse:
		if ko {
			return "AI 응답 형식이 올바르지 않습니다. 다시 시도해주세요."
		}
		return "The AI response did not match the expected format. Please try again."
	default:
		if ko {
			return "생성하는 중 오류가 발생했습니다. 다시 시도해주세요."
		}
		return "An error occurred during generation. Please try again."
	}
}
