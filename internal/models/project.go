// internal/models/project.go
package models

// Stage 流水线阶段，顺序固定且严格递增
type Stage int

const (
	StageLyrics Stage = iota + 1
	StageStories
	StageCharacters
	StageStoryboard
	StageDetailedStoryboard
	StageImagePrompts
	StageVideoPrompts
)

// StageNames 阶段的可读名称
var stageNames = map[Stage]string{
	StageLyrics:             "lyrics",
	StageStories:            "stories",
	StageCharacters:         "characters",
	StageStoryboard:         "storyboard",
	StageDetailedStoryboard: "detailed_storyboard",
	StageImagePrompts:       "image_prompts",
	StageVideoPrompts:       "video_prompts",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsValid 检查是否为已定义的阶段
func (s Stage) IsValid() bool {
	return s >= StageLyrics && s <= StageVideoPrompts
}

// SelectionNone 表示故事列表非空但尚未选择
const SelectionNone = -1

// Project 单一会话的项目状态聚合
// 每个切片只由对应阶段的控制器写入；全部阶段产物同时保留，支持无损回退
type Project struct {
	Lyrics             string        `json:"lyrics"`
	Stories            []StoryOption `json:"stories"`
	SelectedStoryIndex *int          `json:"selected_story_index,omitempty"` // nil=未进入故事阶段, -1=未选择
	Characters         []Character   `json:"characters"`
	BaseScenes         []Scene       `json:"base_scenes"`
	DetailedScenes     []Scene       `json:"detailed_scenes"`
	CurrentStage       Stage         `json:"current_stage"`
	MaxReachedStage    Stage         `json:"max_reached_stage"`
	ActiveLocale       Locale        `json:"active_locale"`
}

// NewProject 初始化空项目
func NewProject() *Project {
	return &Project{
		Stories:         []StoryOption{},
		Characters:      []Character{},
		BaseScenes:      []Scene{},
		DetailedScenes:  []Scene{},
		CurrentStage:    StageLyrics,
		MaxReachedStage: StageLyrics,
		ActiveLocale:    DefaultLocale,
	}
}

// SelectedStory 返回选中的故事，未选择时返回nil
func (p *Project) SelectedStory() *StoryOption {
	if p.SelectedStoryIndex == nil {
		return nil
	}
	idx := *p.SelectedStoryIndex
	if idx < 0 || idx >= len(p.Stories) {
		return nil
	}
	return &p.Stories[idx]
}

// HasSelection 故事阶段是否已有有效选择
func (p *Project) HasSelection() bool {
	return p.SelectedStory() != nil
}

// StageOutputReady 指定阶段是否已产出至少一个产物
// 后继阶段的可达性由此判定；歌词阶段以非空歌词为准
func (p *Project) StageOutputReady(stage Stage) bool {
	switch stage {
	case StageLyrics:
		return p.Lyrics != ""
	case StageStories:
		return p.HasSelection()
	case StageCharacters:
		return len(p.Characters) > 0
	case StageStoryboard:
		return len(p.BaseScenes) > 0
	case StageDetailedStoryboard:
		return len(p.DetailedScenes) > 0
	case StageImagePrompts:
		for i := range p.DetailedScenes {
			if p.DetailedScenes[i].ImagePrompt != "" {
				return true
			}
		}
		return false
	case StageVideoPrompts:
		for i := range p.DetailedScenes {
			if p.DetailedScenes[i].VideoPrompt != "" {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// CanAdvance 当前阶段是否允许前进
// 终点阶段之后前进是空操作，始终返回false
func (p *Project) CanAdvance() bool {
	if p.CurrentStage >= StageVideoPrompts {
		return false
	}
	return p.StageOutputReady(p.CurrentStage)
}

// Advance 前进一个阶段；越过终点或前置条件不满足时不产生变化
func (p *Project) Advance() bool {
	if !p.CanAdvance() {
		return false
	}
	p.CurrentStage++
	if p.CurrentStage > p.MaxReachedStage {
		p.MaxReachedStage = p.CurrentStage
	}
	return true
}

// GoToStage 跳转到已到达过的任意阶段，不清除任何阶段的数据
func (p *Project) GoToStage(stage Stage) bool {
	if !stage.IsValid() || stage > p.MaxReachedStage {
		return false
	}
	p.CurrentStage = stage
	return true
}

// FindSceneByID 在详细分镜中按稳定ID查找镜头
func (p *Project) FindSceneByID(id string) (int, *Scene) {
	for i := range p.DetailedScenes {
		if p.DetailedScenes[i].ID == id {
			return i, &p.DetailedScenes[i]
		}
	}
	return -1, nil
}
