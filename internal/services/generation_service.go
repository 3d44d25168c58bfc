// internal/services/generation_service.go
package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/llm"
	"github.com/Corphon/MVDirectorAI/internal/models"
	"github.com/Corphon/MVDirectorAI/internal/utils"
)

// GenerationService 把各阶段的上下文转换为结构化生成请求，并把结果映射回产物类型
// 不接触项目状态聚合，失败直接上抛给阶段控制器
type GenerationService struct {
	LLMService *LLMService
}

// NewGenerationService 创建生成网关
func NewGenerationService(llmService *LLMService) *GenerationService {
	return &GenerationService{LLMService: llmService}
}

// ---- 输出结构声明（Gemini responseSchema 风格） ----

func stringProp() map[string]interface{} {
	return map[string]interface{}{"type": "STRING"}
}

func stringPropDesc(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "STRING", "description": desc}
}

func integerProp() map[string]interface{} {
	return map[string]interface{}{"type": "INTEGER"}
}

func objectSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "OBJECT",
		"properties": properties,
		"required":   required,
	}
}

func arraySchema(items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":  "ARRAY",
		"items": items,
	}
}

// localePairedProps 为每个字段展开 _ko/_en 两个字符串属性
func localePairedProps(fields ...string) (map[string]interface{}, []string) {
	props := make(map[string]interface{}, len(fields)*2)
	required := make([]string, 0, len(fields)*2)
	for _, field := range fields {
		for _, locale := range models.SupportedLocales() {
			key := field + "_" + string(locale)
			props[key] = stringProp()
			required = append(required, key)
		}
	}
	return props, required
}

// ---- 线上格式（生成端返回的原始记录） ----

// storyWire 双语故事记录
type storyWire struct {
	TitleKo    string `json:"title_ko"`
	TitleEn    string `json:"title_en"`
	GenreKo    string `json:"genre_ko"`
	GenreEn    string `json:"genre_en"`
	SynopsisKo string `json:"synopsis_ko"`
	SynopsisEn string `json:"synopsis_en"`
	MoodKo     string `json:"mood_ko"`
	MoodEn     string `json:"mood_en"`
}

// characterWire 双语人物记录
type characterWire struct {
	NameKo              string   `json:"name_ko"`
	NameEn              string   `json:"name_en"`
	RoleKo              string   `json:"role_ko"`
	RoleEn              string   `json:"role_en"`
	VisualDescriptionKo string   `json:"visualDescription_ko"`
	VisualDescriptionEn string   `json:"visualDescription_en"`
	PersonalityKo       string   `json:"personality_ko"`
	PersonalityEn       string   `json:"personality_en"`
	OutfitKo            string   `json:"outfit_ko"`
	OutfitEn            string   `json:"outfit_en"`
	Keywords            []string `json:"keywords"`
}

// sceneWire 双语场景记录
type sceneWire struct {
	SceneNumber       int    `json:"sceneNumber"`
	LyricsSegment     string `json:"lyricsSegment"`
	VisualActionKo    string `json:"visualAction_ko"`
	VisualActionEn    string `json:"visualAction_en"`
	MoodAndLightingKo string `json:"moodAndLighting_ko"`
	MoodAndLightingEn string `json:"moodAndLighting_en"`
	CameraMovementKo  string `json:"cameraMovement_ko"`
	CameraMovementEn  string `json:"cameraMovement_en"`
	EstimatedDuration string `json:"estimatedDuration"`
}

// ScenePrompt 按场景编号回填的提示词条目
type ScenePrompt struct {
	SceneNumber int    `json:"sceneNumber"`
	Prompt      string `json:"prompt"`
}

// ---- 线上格式到产物类型的映射 ----

func (w *storyWire) localizedValue(locale models.Locale, field string) string {
	switch {
	case locale == models.LocaleKorean && field == models.FieldTitle:
		return w.TitleKo
	case locale == models.LocaleEnglish && field == models.FieldTitle:
		return w.TitleEn
	case locale == models.LocaleKorean && field == models.FieldGenre:
		return w.GenreKo
	case locale == models.LocaleEnglish && field == models.FieldGenre:
		return w.GenreEn
	case locale == models.LocaleKorean && field == models.FieldSynopsis:
		return w.SynopsisKo
	case locale == models.LocaleEnglish && field == models.FieldSynopsis:
		return w.SynopsisEn
	case locale == models.LocaleKorean && field == models.FieldMood:
		return w.MoodKo
	case locale == models.LocaleEnglish && field == models.FieldMood:
		return w.MoodEn
	}
	return ""
}

// storyFromWire 拆分语言字段并用指定语言填充默认字段
func storyFromWire(w *storyWire, displayLocale models.Locale) models.StoryOption {
	story := models.StoryOption{Localized: make(models.LocalizedSet)}
	for _, field := range models.StoryFieldNames() {
		for _, locale := range models.SupportedLocales() {
			story.Localized.Set(locale, field, w.localizedValue(locale, field))
		}
		story.SetDefaultField(field, w.localizedValue(displayLocale, field))
	}
	return story
}

func (w *characterWire) localizedValue(locale models.Locale, field string) string {
	ko := locale == models.LocaleKorean
	switch field {
	case models.FieldName:
		if ko {
			return w.NameKo
		}
		return w.NameEn
	case models.FieldRole:
		if ko {
			return w.RoleKo
		}
		return w.RoleEn
	case models.FieldVisualDescription:
		if ko {
			return w.VisualDescriptionKo
		}
		return w.VisualDescriptionEn
	case models.FieldPersonality:
		if ko {
			return w.PersonalityKo
		}
		return w.PersonalityEn
	case models.FieldOutfit:
		if ko {
			return w.OutfitKo
		}
		return w.OutfitEn
	}
	return ""
}

func characterFromWire(w *characterWire, displayLocale models.Locale) models.Character {
	character := models.Character{
		Keywords:  w.Keywords,
		Localized: make(models.LocalizedSet),
	}
	for _, field := range models.CharacterFieldNames() {
		for _, locale := range models.SupportedLocales() {
			character.Localized.Set(locale, field, w.localizedValue(locale, field))
		}
		character.SetDefaultField(field, w.localizedValue(displayLocale, field))
	}
	return character
}

func (w *sceneWire) localizedValue(locale models.Locale, field string) string {
	ko := locale == models.LocaleKorean
	switch field {
	case models.FieldVisualAction:
		if ko {
			return w.VisualActionKo
		}
		return w.VisualActionEn
	case models.FieldMoodAndLighting:
		if ko {
			return w.MoodAndLightingKo
		}
		return w.MoodAndLightingEn
	case models.FieldCameraMovement:
		if ko {
			return w.CameraMovementKo
		}
		return w.CameraMovementEn
	}
	return ""
}

// sceneFromWire 拆分语言字段并分配稳定ID；编号由调用方统一重排
func sceneFromWire(w *sceneWire, displayLocale models.Locale) models.Scene {
	scene := models.Scene{
		ID:                models.NewSceneID(),
		SceneNumber:       w.SceneNumber,
		LyricsSegment:     w.LyricsSegment,
		EstimatedDuration: w.EstimatedDuration,
		Localized:         make(models.LocalizedSet),
	}
	for _, field := range models.SceneFieldNames() {
		for _, locale := range models.SupportedLocales() {
			scene.Localized.Set(locale, field, w.localizedValue(locale, field))
		}
		scene.SetDefaultField(field, w.localizedValue(displayLocale, field))
	}
	return scene
}

// ---- 上下文拼装 ----

func characterContext(characters []models.Character) string {
	lines := make([]string, 0, len(characters))
	for i := range characters {
		c := &characters[i]
		lines = append(lines, fmt.Sprintf("%s (%s): %s", c.Name, c.Role, c.VisualDescription))
	}
	return strings.Join(lines, "\n")
}

func baseSceneContext(scenes []models.Scene) string {
	lines := make([]string, 0, len(scenes))
	for i := range scenes {
		s := &scenes[i]
		lines = append(lines, fmt.Sprintf("Base Scene %d (%s): %s [Lyrics: %s]",
			s.SceneNumber, s.EstimatedDuration, s.VisualAction, s.LyricsSegment))
	}
	return strings.Join(lines, "\n")
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

const bilingualInstruction = "IMPORTANT: Provide every text field in BOTH Korean (_ko) and English (_en). The Korean version should be natural and creative, not a literal translation."

// ---- 各阶段生成 ----

// GenerateStories 根据歌词生成一批4个故事概念
func (g *GenerationService) GenerateStories(ctx context.Context, lyrics string, displayLocale models.Locale) ([]models.StoryOption, error) {
	props, required := localePairedProps(models.StoryFieldNames()...)
	schema := arraySchema(objectSchema(props, required))

	prompt := fmt.Sprintf(`Based on the following song lyrics, generate 4 distinct music video story concepts.
Each concept should have a unique artistic direction (e.g., Narrative, Abstract, Performance-based, Cinematic).

%s

Lyrics:
"%s"`, bilingualInstruction, lyrics)

	var wires []storyWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are a creative Music Video Director. Output JSON only.", schema, nil, &wires)
	if err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		return nil, apperrors.NewEmptyResponseError("故事生成未返回任何条目")
	}

	stories := make([]models.StoryOption, 0, len(wires))
	for i := range wires {
		stories = append(stories, storyFromWire(&wires[i], displayLocale))
	}
	return stories, nil
}

// ExpandStoryFromKeywords 把用户关键词扩写为一个完整的双语故事概念
func (g *GenerationService) ExpandStoryFromKeywords(ctx context.Context, keywords, lyrics string, displayLocale models.Locale) (models.StoryOption, error) {
	props, required := localePairedProps(models.StoryFieldNames()...)
	schema := objectSchema(props, required)

	prompt := fmt.Sprintf(`Expand the user's keywords into ONE complete music video story concept.
Stay faithful to the keywords; use the lyrics only as supporting context.

%s

Keywords: %s

Lyrics Context: %s`, bilingualInstruction, keywords, truncate(lyrics, 200))

	var wire storyWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are a creative Music Video Director. Output JSON only.", schema, nil, &wire)
	if err != nil {
		return models.StoryOption{}, err
	}

	story := storyFromWire(&wire, displayLocale)
	story.IsCustom = true
	return story, nil
}

// GenerateCharacters 为选定故事生成1-3个主要人物，整体替换花名册
func (g *GenerationService) GenerateCharacters(ctx context.Context, story *models.StoryOption, lyrics string, displayLocale models.Locale) ([]models.Character, error) {
	props, required := localePairedProps(models.CharacterFieldNames()...)
	props["keywords"] = arraySchema(stringProp())
	required = append(required, "keywords")
	schema := arraySchema(objectSchema(props, required))

	prompt := fmt.Sprintf(`Create a list of main characters (1-3 main characters) for a music video based on this story concept.
For each character include 3-6 short visual keywords usable in image prompts (in English).

%s

Story Title: %s
Synopsis: %s
Mood: %s

Lyrics Context: %s`, bilingualInstruction, story.Title, story.Synopsis, story.Mood, truncate(lyrics, 200))

	var wires []characterWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are a casting director for music videos. Output JSON only.", schema, nil, &wires)
	if err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		return nil, apperrors.NewEmptyResponseError("人物生成未返回任何条目")
	}

	characters := make([]models.Character, 0, len(wires))
	for i := range wires {
		characters = append(characters, characterFromWire(&wires[i], displayLocale))
	}
	return characters, nil
}

// RegenerateCharacter 针对单个人物的定向再生成
// 携带当前字段值、关键词、自由指令和可选参考图；返回的记录整体替换该槽位
func (g *GenerationService) RegenerateCharacter(ctx context.Context, current *models.Character,
	instruction string, referenceImage *llm.ImageAttachment, displayLocale models.Locale) (models.Character, error) {

	props, required := localePairedProps(models.CharacterFieldNames()...)
	props["keywords"] = arraySchema(stringProp())
	required = append(required, "keywords")
	schema := objectSchema(props, required)

	prompt := fmt.Sprintf(`Rework ONE music video character according to the user's instruction.
Keep what the instruction does not ask to change. Return the complete updated character,
including a refreshed keyword list (3-6 short English visual keywords).

%s

Current character:
Name: %s
Role: %s
Visual: %s
Personality: %s
Outfit: %s
Keywords: %s

Instruction: %s`, bilingualInstruction,
		current.Name, current.Role, current.VisualDescription, current.Personality,
		current.Outfit, strings.Join(current.Keywords, ", "), instruction)

	if referenceImage != nil {
		prompt += "\n\nA reference image is attached; align the visual description and outfit with it."
	}

	var attachments []llm.ImageAttachment
	if referenceImage != nil {
		attachments = []llm.ImageAttachment{*referenceImage}
	}

	var wire characterWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are a casting director for music videos. Output JSON only.", schema, attachments, &wire)
	if err != nil {
		return models.Character{}, err
	}

	return characterFromWire(&wire, displayLocale), nil
}

// sceneSchema 场景记录的输出结构声明
func sceneSchema(durationDesc string) map[string]interface{} {
	props, required := localePairedProps(models.SceneFieldNames()...)
	props["sceneNumber"] = integerProp()
	props["lyricsSegment"] = stringPropDesc("The specific line(s) of lyrics this scene covers")
	props["estimatedDuration"] = stringPropDesc(durationDesc)
	required = append(required, "sceneNumber", "lyricsSegment", "estimatedDuration")
	return arraySchema(objectSchema(props, required))
}

// GenerateStoryboard 生成8-12个叙事节拍级的粗分镜，整体替换
func (g *GenerationService) GenerateStoryboard(ctx context.Context, lyrics string, story *models.StoryOption,
	characters []models.Character, displayLocale models.Locale) ([]models.Scene, error) {

	schema := sceneSchema(`Estimated duration of the scene (e.g., "8s")`)

	prompt := fmt.Sprintf(`Create a storyboard (8 to 12 scenes) for a music video.
Match scenes to the lyrics progression.

%s

Story: %s - %s
Characters: %s

Full Lyrics:
%s`, bilingualInstruction, story.Title, story.Synopsis, characterContext(characters), lyrics)

	var wires []sceneWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are a professional Music Video Director. Output JSON only.", schema, nil, &wires)
	if err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		return nil, apperrors.NewEmptyResponseError("分镜生成未返回任何场景")
	}

	scenes := make([]models.Scene, 0, len(wires))
	for i := range wires {
		scene := sceneFromWire(&wires[i], displayLocale)
		scene.SceneNumber = i + 1 // 列表内从1起连续编号
		scenes = append(scenes, scene)
	}
	return scenes, nil
}

// GenerateDetailedStoryboard 把粗分镜拆分为时长不超过5秒的镜头列表
// 这是流水线中唯一带数值不变量的环节：逐条校验返回时长，越界按结构错误上抛
func (g *GenerationService) GenerateDetailedStoryboard(ctx context.Context, baseScenes []models.Scene,
	story *models.StoryOption, characters []models.Character, displayLocale models.Locale) ([]models.Scene, error) {

	schema := sceneSchema(`Must be 5 seconds or less (e.g., "2s", "4.5s")`)

	prompt := fmt.Sprintf(`You are a professional Music Video Editor and Director.
Your task is to REGENERATE the "Base Storyboard" into a "Detailed Shooting Script" by splitting scenes into smaller cuts.

CRITICAL RULES:
1. **MAX DURATION**: Every single cut must be **5 seconds or less**.
2. **SPLIT & REFINE**: If a base scene suggests a long action, break it down into multiple cuts (e.g., Wide shot -> Close up -> Reaction shot).
3. **CONTINUITY**: The sequence of cuts must tell the same story as the base scene.
4. **QUANTITY**: Expect to generate more scenes than the input (e.g., 8 base scenes -> 20 detailed cuts).

%s

Context:
Story: %s
Mood: %s
Characters: %s

Base Storyboard to Regenerate:
%s`, bilingualInstruction, story.Title, story.Mood, characterContext(characters), baseSceneContext(baseScenes))

	var wires []sceneWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are a professional Music Video Editor. Output JSON only.", schema, nil, &wires)
	if err != nil {
		return nil, err
	}
	if len(wires) == 0 {
		return nil, apperrors.NewEmptyResponseError("详细分镜生成未返回任何镜头")
	}

	scenes := make([]models.Scene, 0, len(wires))
	for i := range wires {
		seconds, err := models.ParseDurationSeconds(wires[i].EstimatedDuration)
		if err != nil {
			return nil, apperrors.NewMalformedResponseError(
				fmt.Sprintf("镜头%d的时长无法解析: %q", i+1, wires[i].EstimatedDuration), err)
		}
		if seconds > models.MaxShotDurationSeconds {
			return nil, apperrors.NewMalformedResponseError(
				fmt.Sprintf("镜头%d的时长%.1fs超出%.0fs上限", i+1, seconds, models.MaxShotDurationSeconds), nil)
		}

		scene := sceneFromWire(&wires[i], displayLocale)
		scene.SceneNumber = i + 1 // 与粗分镜编号无关的连续重排
		scenes = append(scenes, scene)
	}

	if len(scenes) < len(baseScenes) {
		// 拆分结果通常应多于输入，少于输入时记录但不拒绝
		utils.GetLogger().Warn("detailed storyboard smaller than base list", map[string]interface{}{
			"base": len(baseScenes), "detailed": len(scenes),
		})
	}

	return scenes, nil
}

// promptItemsSchema 按场景编号回填提示词的输出结构
func promptItemsSchema(promptField, desc string) map[string]interface{} {
	return arraySchema(objectSchema(map[string]interface{}{
		"sceneNumber": integerProp(),
		promptField:   stringPropDesc(desc),
	}, []string{"sceneNumber", promptField}))
}

// imagePromptWire / videoPromptWire 提示词回填记录
type imagePromptWire struct {
	SceneNumber int    `json:"sceneNumber"`
	ImagePrompt string `json:"imagePrompt"`
}

type videoPromptWire struct {
	SceneNumber int    `json:"sceneNumber"`
	VideoPrompt string `json:"videoPrompt"`
}

// GenerateImagePrompts 为每个镜头生成一条文生图提示词
func (g *GenerationService) GenerateImagePrompts(ctx context.Context, scenes []models.Scene, story *models.StoryOption) ([]ScenePrompt, error) {
	schema := promptItemsSchema("imagePrompt", "A high-quality text-to-image prompt (Midjourney/Stable Diffusion style)")

	lines := make([]string, 0, len(scenes))
	for i := range scenes {
		s := &scenes[i]
		lines = append(lines, fmt.Sprintf("Scene %d (%s): Action: %s, Mood: %s",
			s.SceneNumber, s.EstimatedDuration, s.VisualAction, s.MoodAndLighting))
	}

	prompt := fmt.Sprintf(`Generate highly detailed AI image generation prompts for each scene in the storyboard.
The style should be consistent with the story mood: %s.
Include details about lighting, camera angle, texture, and color palette.

The scenes are short cuts (under 5s). Focus on the static visual quality of this specific moment.

Scenes:
%s`, story.Mood, strings.Join(lines, "\n"))

	var wires []imagePromptWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are an expert prompt engineer for image generation models. Output JSON only.", schema, nil, &wires)
	if err != nil {
		return nil, err
	}

	prompts := make([]ScenePrompt, 0, len(wires))
	for _, w := range wires {
		prompts = append(prompts, ScenePrompt{SceneNumber: w.SceneNumber, Prompt: w.ImagePrompt})
	}
	return prompts, nil
}

// GenerateVideoPrompts 基于动作、运镜和已生成的图像提示词产出文生视频提示词
func (g *GenerationService) GenerateVideoPrompts(ctx context.Context, scenes []models.Scene) ([]ScenePrompt, error) {
	schema := promptItemsSchema("videoPrompt", "A detailed text-to-video prompt focusing on motion and camera physics")

	lines := make([]string, 0, len(scenes))
	for i := range scenes {
		s := &scenes[i]
		lines = append(lines, fmt.Sprintf("Scene %d (%s): Visual: %s, Camera: %s, Base Image Prompt: %s",
			s.SceneNumber, s.EstimatedDuration, s.VisualAction, s.CameraMovement, s.ImagePrompt))
	}

	prompt := fmt.Sprintf(`Generate specific AI video generation prompts (like for Sora, Runway, or Veo) for each scene.
These are short cuts (under 5s). Focus heavily on the MOTION, CAMERA MOVEMENT, and PHYSICS of the scene within that short timeframe.

Scenes:
%s`, strings.Join(lines, "\n"))

	var wires []videoPromptWire
	err := g.LLMService.CreateStructuredCompletion(ctx, prompt,
		"You are an expert prompt engineer for video generation models. Output JSON only.", schema, nil, &wires)
	if err != nil {
		return nil, err
	}

	prompts := make([]ScenePrompt, 0, len(wires))
	for _, w := range wires {
		prompts = append(prompts, ScenePrompt{SceneNumber: w.SceneNumber, Prompt: w.VideoPrompt})
	}
	return prompts, nil
}

// RenderSceneImages 为单个镜头渲染静帧
// 结果由调用方追加到镜头的图像序列，从不替换既有图像
func (g *GenerationService) RenderSceneImages(ctx context.Context, scene *models.Scene,
	aspectRatio string, count int, model string, referenceImages []llm.ImageAttachment) ([]models.GeneratedImage, error) {

	if scene.ImagePrompt == "" {
		return nil, apperrors.NewValidationError("该镜头还没有图像提示词", nil)
	}
	if !llm.IsValidAspectRatio(aspectRatio) {
		return nil, apperrors.NewValidationError("不支持的宽高比: "+aspectRatio, nil)
	}
	if count < 1 || count > 20 {
		return nil, apperrors.NewValidationError(fmt.Sprintf("图像数量%d超出1-20的范围", count), nil)
	}

	raw, err := g.LLMService.GenerateImages(ctx, llm.ImageRequest{
		Prompt:          scene.ImagePrompt,
		AspectRatio:     aspectRatio,
		Count:           count,
		Model:           model,
		ReferenceImages: referenceImages,
	})
	if err != nil {
		return nil, err
	}

	images := make([]models.GeneratedImage, 0, len(raw))
	for _, img := range raw {
		images = append(images, models.GeneratedImage{
			Data:     base64.StdEncoding.EncodeToString(img.Data),
			MimeType: img.MimeType,
		})
	}
	return images, nil
}
