package artifacts_test

import (
	"testing"

	"clovis/internal/artifacts"
	"clovis/internal/projects"
	"clovis/internal/testsupport"
)

func TestPresenceProbesFilesystem(t *testing.T) {
	root := t.TempDir()
	layout := artifacts.LayoutAt(root)

	if presence := layout.Presence(); presence.Instrumental || presence.Melody {
		t.Fatalf("expected empty workspace, got %+v", presence)
	}

	testsupport.WriteFile(t, layout.Instrumental("mp3"), 64)
	testsupport.WriteText(t, layout.MelodyJSON(), `{"notes":[]}`)
	testsupport.WriteFile(t, layout.RawVocals(), 64)

	presence := layout.Presence()
	if !presence.Instrumental || !presence.Melody || !presence.RawVocals {
		t.Fatalf("expected artifacts detected, got %+v", presence)
	}
	if presence.RefinedVocals || presence.FinalMix {
		t.Fatalf("expected later artifacts absent, got %+v", presence)
	}
}

func TestFindInstrumentalAnyFormat(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	if _, ok := layout.FindInstrumental(); ok {
		t.Fatal("expected no instrumental in empty workspace")
	}

	testsupport.WriteFile(t, layout.Instrumental("flac"), 32)
	path, ok := layout.FindInstrumental()
	if !ok {
		t.Fatal("expected instrumental to be found")
	}
	if path != layout.Instrumental("flac") {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestClearFromRemovesLaterStages(t *testing.T) {
	layout := artifacts.LayoutAt(t.TempDir())

	testsupport.WriteText(t, layout.MelodyJSON(), "{}")
	testsupport.WriteFile(t, layout.MelodyMIDI(), 16)
	testsupport.WriteFile(t, layout.RawVocals(), 16)
	testsupport.WriteFile(t, layout.RefinedVocals(), 16)
	testsupport.WriteFile(t, layout.FinalMix(), 16)

	if err := layout.ClearFrom(projects.StepSynthesis); err != nil {
		t.Fatalf("ClearFrom: %v", err)
	}

	presence := layout.Presence()
	if !presence.Melody {
		t.Fatal("melody should survive a synthesis re-run")
	}
	if presence.RawVocals || presence.RefinedVocals || presence.FinalMix {
		t.Fatalf("expected synthesis onward cleared, got %+v", presence)
	}
}
