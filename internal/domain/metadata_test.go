package domain

import (
	"encoding/json"
	"testing"
)

func TestMetadataIntToleratesJSONNumbers(t *testing.T) {
	t.Parallel()
	var m Metadata
	if err := json.Unmarshal([]byte(`{"sceneIndex": 4}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := m.Int(MetaSceneIndex)
	if !ok || got != 4 {
		t.Fatalf("Int = %d, %v", got, ok)
	}
}

func TestSceneViewValidation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		meta    Metadata
		wantErr bool
		wantIdx int
	}{
		{name: "valid", meta: Metadata{MetaSceneIndex: 2}, wantIdx: 2},
		{name: "zero", meta: Metadata{MetaSceneIndex: 0}, wantIdx: 0},
		{name: "missing", meta: Metadata{}, wantErr: true},
		{name: "negative", meta: Metadata{MetaSceneIndex: -1}, wantErr: true},
		{name: "wrong_type", meta: Metadata{MetaSceneIndex: "2"}, wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.meta.Scene()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Scene returned error: %v", err)
			}
			if got.SceneIndex != tc.wantIdx {
				t.Fatalf("SceneIndex = %d, want %d", got.SceneIndex, tc.wantIdx)
			}
		})
	}
}

func TestImagesViewDefaultsSkipExisting(t *testing.T) {
	t.Parallel()
	if !(Metadata{}).Images().SkipExisting {
		t.Fatal("skipExisting should default to true")
	}
	if (Metadata{MetaSkipExisting: false}).Images().SkipExisting {
		t.Fatal("explicit false should win")
	}
}

func TestTranscriptionViewRequiresAudioURL(t *testing.T) {
	t.Parallel()
	if _, err := (Metadata{}).Transcription(); err == nil {
		t.Fatal("expected error without audioUrl")
	}
	tm, err := Metadata{MetaAudioURL: "https://cdn/a.mp3"}.Transcription()
	if err != nil {
		t.Fatalf("Transcription returned error: %v", err)
	}
	if tm.AudioURL != "https://cdn/a.mp3" {
		t.Fatalf("AudioURL = %q", tm.AudioURL)
	}
}

func TestStringSliceFromJSON(t *testing.T) {
	t.Parallel()
	var m Metadata
	if err := json.Unmarshal([]byte(`{"exampleUrls": ["a", "b"]}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := m.StringSlice(MetaExampleURLs)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("StringSlice = %#v", got)
	}
}

func TestMarshalMetadataNil(t *testing.T) {
	t.Parallel()
	if got := string(MarshalMetadata(nil)); got != "{}" {
		t.Fatalf("MarshalMetadata(nil) = %q", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()
	orig := Metadata{MetaRegenerate: true}
	clone := orig.Clone()
	clone[MetaRegenerate] = false
	if !orig.Bool(MetaRegenerate) {
		t.Fatal("mutating the clone changed the original")
	}
}
