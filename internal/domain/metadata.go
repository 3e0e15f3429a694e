package domain

import (
	"encoding/json"
	"fmt"
)

// Metadata is the open key/value bag carried by every job. It holds the
// job-type-specific inputs at dispatch time and, during execution, a live
// mirror of partial results so observers can render incremental output.
// Typed views per job type are exposed through the decode helpers below.
type Metadata map[string]any

// Well-known metadata keys.
const (
	MetaSceneIndex          = "sceneIndex"
	MetaSkipExisting        = "skipExisting"
	MetaSemiAutoMode        = "semiAutoMode"
	MetaRegenerate          = "regenerate"
	MetaAudioURL            = "audioUrl"
	MetaVideoTitle          = "videoTitle"
	MetaVideoScript         = "videoScript"
	MetaExampleURLs         = "exampleUrls"
	MetaCharacterRefURL     = "characterRefUrl"
	MetaCustomPrompt        = "customPrompt"
	MetaUserIdea            = "userIdea"
	MetaImageModel          = "imageModel"
	MetaGeneratedPrompts    = "generatedPrompts"
	MetaGeneratedThumbnails = "generatedThumbnails"
)

// Clone returns a shallow copy that is safe to mutate key-wise.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Bool reads a boolean key, tolerating absence.
func (m Metadata) Bool(key string) bool {
	v, ok := m[key].(bool)
	return ok && v
}

// BoolDefault reads a boolean key, returning def when the key is absent or not
// a boolean.
func (m Metadata) BoolDefault(key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// Int reads an integer key. JSON decoding yields float64, so both are
// accepted.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// String reads a string key, returning "" when absent.
func (m Metadata) String(key string) string {
	v, _ := m[key].(string)
	return v
}

// StringSlice reads a list-of-strings key, tolerating []any from JSON.
func (m Metadata) StringSlice(key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SemiAuto reports whether the job participates in the unattended pipeline.
func (m Metadata) SemiAuto() bool {
	return m.Bool(MetaSemiAutoMode)
}

// PromptsMeta is the typed view for prompts jobs.
type PromptsMeta struct {
	Regenerate bool
}

// Prompts decodes the prompts-job view.
func (m Metadata) Prompts() PromptsMeta {
	return PromptsMeta{Regenerate: m.Bool(MetaRegenerate)}
}

// ImagesMeta is the typed view for images jobs. SkipExisting defaults to
// true: a plain images job only fills holes, regeneration of everything must
// be requested explicitly.
type ImagesMeta struct {
	SkipExisting bool
}

// Images decodes the images-job view.
func (m Metadata) Images() ImagesMeta {
	return ImagesMeta{SkipExisting: m.BoolDefault(MetaSkipExisting, true)}
}

// SceneMeta is the typed view for single_prompt and single_image jobs.
type SceneMeta struct {
	SceneIndex int
}

// Scene decodes the single-scene view. The index is mandatory.
func (m Metadata) Scene() (SceneMeta, error) {
	idx, ok := m.Int(MetaSceneIndex)
	if !ok {
		return SceneMeta{}, fmt.Errorf("%w: %s is required", ErrInvalidMetadata, MetaSceneIndex)
	}
	if idx < 0 {
		return SceneMeta{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidMetadata, MetaSceneIndex)
	}
	return SceneMeta{SceneIndex: idx}, nil
}

// TranscriptionMeta is the typed view for transcription jobs.
type TranscriptionMeta struct {
	AudioURL string
}

// Transcription decodes the transcription-job view.
func (m Metadata) Transcription() (TranscriptionMeta, error) {
	url := m.String(MetaAudioURL)
	if url == "" {
		return TranscriptionMeta{}, fmt.Errorf("%w: %s is required", ErrInvalidMetadata, MetaAudioURL)
	}
	return TranscriptionMeta{AudioURL: url}, nil
}

// ThumbnailsMeta is the typed view for thumbnails jobs.
type ThumbnailsMeta struct {
	VideoTitle      string
	VideoScript     string
	ExampleURLs     []string
	CharacterRefURL string
	CustomPrompt    string
	UserIdea        string
	ImageModel      string
}

// Thumbnails decodes the thumbnails-job view. Fields left empty may be filled
// from the project's thumbnail preset by the caller.
func (m Metadata) Thumbnails() ThumbnailsMeta {
	return ThumbnailsMeta{
		VideoTitle:      m.String(MetaVideoTitle),
		VideoScript:     m.String(MetaVideoScript),
		ExampleURLs:     m.StringSlice(MetaExampleURLs),
		CharacterRefURL: m.String(MetaCharacterRefURL),
		CustomPrompt:    m.String(MetaCustomPrompt),
		UserIdea:        m.String(MetaUserIdea),
		ImageModel:      m.String(MetaImageModel),
	}
}

// GeneratedThumbnail is one finished thumbnail mirrored into job metadata as
// it lands, and persisted to history on job completion.
type GeneratedThumbnail struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
	Index  int    `json:"index"`
}

// MarshalMetadata renders the bag for jsonb storage. A nil map serializes as
// an empty object rather than SQL NULL.
func MarshalMetadata(m Metadata) []byte {
	if m == nil {
		m = Metadata{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}
