// internal/models/project_test.go
package models

import "testing"

func projectWithOutputs(stage Stage) *Project {
	p := NewProject()
	if stage >= StageLyrics {
		p.Lyrics = "밤하늘의 별처럼"
	}
	if stage >= StageStories {
		p.Stories = []StoryOption{{Title: "스토리"}}
		idx := 0
		p.SelectedStoryIndex = &idx
	}
	if stage >= StageCharacters {
		p.Characters = []Character{{Name: "주인공"}}
	}
	if stage >= StageStoryboard {
		p.BaseScenes = []Scene{{ID: NewSceneID(), SceneNumber: 1}}
	}
	if stage >= StageDetailedStoryboard {
		p.DetailedScenes = []Scene{{ID: NewSceneID(), SceneNumber: 1, EstimatedDuration: "3s"}}
	}
	if stage >= StageImagePrompts {
		p.DetailedScenes[0].ImagePrompt = "cinematic shot"
	}
	if stage >= StageVideoPrompts {
		p.DetailedScenes[0].VideoPrompt = "slow dolly in"
	}
	return p
}

func TestAdvanceGatedOnStageOutput(t *testing.T) {
	p := NewProject()

	// 空项目不能前进
	if p.Advance() {
		t.Fatal("没有歌词时不应允许前进")
	}
	if p.CurrentStage != StageLyrics {
		t.Fatalf("失败的前进不应改变阶段，实际为 %v", p.CurrentStage)
	}

	p.Lyrics = "가사"
	if !p.Advance() {
		t.Fatal("歌词就绪后应允许前进")
	}
	if p.CurrentStage != StageStories {
		t.Fatalf("期望进入stories阶段，实际为 %v", p.CurrentStage)
	}

	// 故事列表非空但未选择时仍不能前进
	p.Stories = []StoryOption{{Title: "A"}}
	none := SelectionNone
	p.SelectedStoryIndex = &none
	if p.Advance() {
		t.Fatal("未选择故事时不应允许前进")
	}

	idx := 0
	p.SelectedStoryIndex = &idx
	if !p.Advance() {
		t.Fatal("选择故事后应允许前进")
	}
}

func TestAdvanceStopsAtFinalStage(t *testing.T) {
	p := projectWithOutputs(StageVideoPrompts)
	p.CurrentStage = StageVideoPrompts
	p.MaxReachedStage = StageVideoPrompts

	if p.Advance() {
		t.Fatal("终点阶段之后前进应是空操作")
	}
	if p.CurrentStage != StageVideoPrompts {
		t.Fatalf("阶段不应越过终点，实际为 %v", p.CurrentStage)
	}
}

func TestGoToStageBackwardKeepsData(t *testing.T) {
	p := projectWithOutputs(StageDetailedStoryboard)
	p.CurrentStage = StageDetailedStoryboard
	p.MaxReachedStage = StageDetailedStoryboard

	if !p.GoToStage(StageStories) {
		t.Fatal("回退到已到达的阶段应总是被允许")
	}
	if p.CurrentStage != StageStories {
		t.Fatalf("期望回到stories阶段，实际为 %v", p.CurrentStage)
	}

	// 回退不清除任何数据
	if len(p.DetailedScenes) == 0 || len(p.BaseScenes) == 0 || len(p.Characters) == 0 {
		t.Fatal("回退不应清除任何阶段的产物")
	}

	// 曾到达的阶段可以直接跳回去
	if !p.GoToStage(StageDetailedStoryboard) {
		t.Fatal("向前跳到已到达的阶段应被允许")
	}
}

func TestGoToStageRejectsUnreachedStage(t *testing.T) {
	p := NewProject()
	if p.GoToStage(StageStoryboard) {
		t.Fatal("未到达过的阶段不应允许跳转")
	}
	if p.GoToStage(Stage(99)) {
		t.Fatal("非法阶段不应允许跳转")
	}
}

func TestSelectedStorySentinel(t *testing.T) {
	p := NewProject()

	// nil表示尚未进入故事阶段
	if p.SelectedStory() != nil || p.HasSelection() {
		t.Fatal("新项目不应有选中故事")
	}

	p.Stories = []StoryOption{{Title: "A"}, {Title: "B"}}
	none := SelectionNone
	p.SelectedStoryIndex = &none
	if p.HasSelection() {
		t.Fatal("-1哨兵值不应视作有效选择")
	}

	idx := 1
	p.SelectedStoryIndex = &idx
	story := p.SelectedStory()
	if story == nil || story.Title != "B" {
		t.Fatalf("期望选中B，实际为 %+v", story)
	}
}

func TestFindSceneByID(t *testing.T) {
	p := NewProject()
	id := NewSceneID()
	p.DetailedScenes = []Scene{
		{ID: NewSceneID(), SceneNumber: 1},
		{ID: id, SceneNumber: 2},
	}

	i, scene := p.FindSceneByID(id)
	if i != 1 || scene == nil || scene.SceneNumber != 2 {
		t.Fatalf("期望命中第二个镜头，实际 index=%d scene=%+v", i, scene)
	}

	if i, scene := p.FindSceneByID("missing"); i != -1 || scene != nil {
		t.Fatal("不存在的ID应返回-1和nil")
	}
}
