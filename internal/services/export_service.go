// internal/services/export_service.go
package services

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/MVDirectorAI/internal/errors"
	"github.com/Corphon/MVDirectorAI/internal/models"
)

// ExportService 把项目状态导出为Markdown文档
type ExportService struct {
	ProjectService *ProjectService
}

// NewExportService 创建导出服务
func NewExportService(projectService *ProjectService) *ExportService {
	return &ExportService{ProjectService: projectService}
}

// ExportResult 导出结果
type ExportResult struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Content  string `json:"content"`
}

// ExportFullProject 导出完整项目文档，覆盖全部已产出的阶段
func (s *ExportService) ExportFullProject() (*ExportResult, error) {
	p := s.ProjectService.Project()

	var md strings.Builder
	md.WriteString("# MV Director AI Project\n\n")
	md.WriteString(fmt.Sprintf("**Date:** %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	if p.Lyrics != "" {
		md.WriteString(fmt.Sprintf("## 1. Lyrics\n\n%s\n\n---\n\n", p.Lyrics))
	}

	if story := p.SelectedStory(); story != nil {
		md.WriteString(fmt.Sprintf("## 2. Selected Story: %s\n\n", story.Title))
		md.WriteString(fmt.Sprintf("**Genre:** %s\n", story.Genre))
		md.WriteString(fmt.Sprintf("**Mood:** %s\n", story.Mood))
		md.WriteString(fmt.Sprintf("**Synopsis:**\n%s\n\n---\n\n", story.Synopsis))
	}

	if len(p.Characters) > 0 {
		md.WriteString("## 3. Characters\n\n")
		for i := range p.Characters {
			writeCharacterSection(&md, &p.Characters[i])
		}
		md.WriteString("---\n\n")
	}

	if len(p.BaseScenes) > 0 {
		md.WriteString("## 4. Base Storyboard\n\n")
		for i := range p.BaseScenes {
			scene := &p.BaseScenes[i]
			md.WriteString(fmt.Sprintf("### Scene %d (%s)\n", scene.SceneNumber, scene.EstimatedDuration))
			md.WriteString(fmt.Sprintf("- **Action:** %s\n", scene.VisualAction))
			md.WriteString(fmt.Sprintf("- **Mood:** %s\n", scene.MoodAndLighting))
			md.WriteString(fmt.Sprintf("- **Camera:** %s\n", scene.CameraMovement))
			md.WriteString(fmt.Sprintf("- **Lyrics:** %s\n\n", scene.LyricsSegment))
		}
		md.WriteString("---\n\n")
	}

	if len(p.DetailedScenes) > 0 {
		md.WriteString("## 5-7. Detailed Storyboard & Prompts (Shooting Script)\n\n")
		for i := range p.DetailedScenes {
			scene := &p.DetailedScenes[i]
			md.WriteString(fmt.Sprintf("### Cut %d (%s)\n", scene.SceneNumber, scene.EstimatedDuration))
			md.WriteString(fmt.Sprintf("- **Action:** %s\n", scene.VisualAction))
			md.WriteString(fmt.Sprintf("- **Mood:** %s\n", scene.MoodAndLighting))
			md.WriteString(fmt.Sprintf("- **Camera:** %s\n", scene.CameraMovement))
			if scene.ImagePrompt != "" {
				md.WriteString(fmt.Sprintf("\n**Image Prompt:**\n> %s\n", scene.ImagePrompt))
			}
			if scene.VideoPrompt != "" {
				md.WriteString(fmt.Sprintf("\n**Video Prompt:**\n> %s\n", scene.VideoPrompt))
			}
			md.WriteString("\n")
		}
		md.WriteString("---\n\n")
	}

	return &ExportResult{
		FileName: "MV_Project_Full.md",
		MimeType: "text/markdown",
		Content:  md.String(),
	}, nil
}

// ExportStories 只导出故事概念列表，选中项带标记
func (s *ExportService) ExportStories() (*ExportResult, error) {
	p := s.ProjectService.Project()
	if len(p.Stories) == 0 {
		return nil, apperrors.NewNotFoundError("还没有可导出的故事", nil)
	}

	selected := models.SelectionNone
	if p.SelectedStoryIndex != nil {
		selected = *p.SelectedStoryIndex
	}

	var md strings.Builder
	md.WriteString("# Story Concepts\n\n")
	for i := range p.Stories {
		story := &p.Stories[i]
		marker := ""
		if i == selected {
			marker = " (Selected)"
		}
		md.WriteString(fmt.Sprintf("## %d. %s%s\n\n", i+1, story.Title, marker))
		md.WriteString(fmt.Sprintf("**Genre:** %s\n", story.Genre))
		md.WriteString(fmt.Sprintf("**Mood:** %s\n", story.Mood))
		md.WriteString(fmt.Sprintf("**Synopsis:**\n%s\n\n", story.Synopsis))
	}

	return &ExportResult{
		FileName: "MV_Stories.md",
		MimeType: "text/markdown",
		Content:  md.String(),
	}, nil
}

// ExportCharacters 只导出人物设定
func (s *ExportService) ExportCharacters() (*ExportResult, error) {
	p := s.ProjectService.Project()
	if len(p.Characters) == 0 {
		return nil, apperrors.NewNotFoundError("还没有可导出的人物", nil)
	}

	var md strings.Builder
	md.WriteString("# Characters\n\n")
	for i := range p.Characters {
		writeCharacterSection(&md, &p.Characters[i])
	}

	return &ExportResult{
		FileName: "MV_Characters.md",
		MimeType: "text/markdown",
		Content:  md.String(),
	}, nil
}

func writeCharacterSection(md *strings.Builder, c *models.Character) {
	md.WriteString(fmt.Sprintf("### %s (%s)\n", c.Name, c.Role))
	md.WriteString(fmt.Sprintf("- **Visual:** %s\n", c.VisualDescription))
	md.WriteString(fmt.Sprintf("- **Personality:** %s\n", c.Personality))
	md.WriteString(fmt.Sprintf("- **Outfit:** %s\n", c.Outfit))
	if len(c.Keywords) > 0 {
		md.WriteString(fmt.Sprintf("- **Keywords:** %s\n", strings.Join(c.Keywords, ", ")))
	}
	md.WriteString("\n")
}
