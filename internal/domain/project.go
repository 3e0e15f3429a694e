package domain

import (
	"strings"
	"time"
)

// Scene is a time-bounded slice of the source transcript that becomes one
// visual unit of the output video.
type Scene struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
}

// PromptErrorSentinel marks a prompt slot whose generation failed. Downstream
// steps (image generation, the sliding context window) skip entries holding
// it.
const PromptErrorSentinel = "generation failed"

// PromptEntry is one scene's generated prompt plus the image produced from
// it. The prompts array is index-aligned with the scenes array and may
// contain nil holes.
type PromptEntry struct {
	Scene     string  `json:"scene"`
	Prompt    string  `json:"prompt"`
	Text      string  `json:"text"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Duration  float64 `json:"duration"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

// Failed reports whether the entry holds the error sentinel.
func (e *PromptEntry) Failed() bool {
	return e != nil && e.Prompt == PromptErrorSentinel
}

// HasPrompt reports whether the entry holds a usable prompt.
func (e *PromptEntry) HasPrompt() bool {
	return e != nil && e.Prompt != "" && !e.Failed()
}

// HasImage reports whether the entry already carries a generated image.
func (e *PromptEntry) HasImage() bool {
	return e != nil && e.ImageURL != ""
}

// TranscriptSegment is one fragment of the transcription service output.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Transcript is the segment-structured result of transcribing the project's
// audio source.
type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
}

// FullText joins all segment texts into one string.
func (t *Transcript) FullText() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if s := strings.TrimSpace(seg.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// ThumbnailPreset carries the style inputs for thumbnail generation.
type ThumbnailPreset struct {
	Name            string   `json:"name"`
	ExampleURLs     []string `json:"exampleUrls"`
	CharacterRefURL string   `json:"characterRefUrl,omitempty"`
	CustomPrompt    string   `json:"customPrompt,omitempty"`
}

// Project is the shared mutable state the job processors read and write.
// Revision guards prompt-array writes: every save must name the revision it
// read, and a mismatch is rejected so the writer can re-fetch and retry.
type Project struct {
	ID                  string
	Name                string
	AudioURL            string
	Transcript          *Transcript
	Scenes              []Scene
	Prompts             []*PromptEntry
	Summary             string
	ExamplePrompts      []string
	PromptSystemMessage string
	ImageWidth          int
	ImageHeight         int
	ImageModel          string
	StyleReferenceURLs  []string
	ThumbnailPreset     *ThumbnailPreset
	Revision            int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MissingImageCount returns how many prompt entries hold a usable prompt but
// no image yet.
func (p *Project) MissingImageCount() int {
	n := 0
	for _, entry := range p.Prompts {
		if entry.HasPrompt() && !entry.HasImage() {
			n++
		}
	}
	return n
}

// VideoScript joins the scene texts of all prompt entries into the script
// used for thumbnail prompt generation.
func (p *Project) VideoScript() string {
	parts := make([]string, 0, len(p.Prompts))
	for _, entry := range p.Prompts {
		if entry != nil && entry.Text != "" {
			parts = append(parts, entry.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ClonePrompts copies the prompts array so a worker can mutate it without
// aliasing the fetched project.
func ClonePrompts(prompts []*PromptEntry) []*PromptEntry {
	out := make([]*PromptEntry, len(prompts))
	for i, entry := range prompts {
		if entry != nil {
			copied := *entry
			out[i] = &copied
		}
	}
	return out
}

// EnsurePromptLen grows the prompts array with nil holes until it covers n
// scenes.
func EnsurePromptLen(prompts []*PromptEntry, n int) []*PromptEntry {
	for len(prompts) < n {
		prompts = append(prompts, nil)
	}
	return prompts
}
