package presets

import "testing"

func TestCatalogContainsExpectedPresets(t *testing.T) {
	names := map[string]bool{}
	for _, p := range MixPresets() {
		names[p.Name] = true
	}
	for _, want := range []string{"balanced", "vocal_forward", "ambient", "dry", "radio"} {
		if !names[want] {
			t.Errorf("missing mix preset %q", want)
		}
	}
}

func TestMixPresetByName(t *testing.T) {
	p, ok := MixPresetByName("Vocal_Forward")
	if !ok {
		t.Fatal("expected vocal_forward to exist")
	}
	if p.VocalGainDB <= 0 {
		t.Fatalf("vocal_forward should push the vocal up, got %f dB", p.VocalGainDB)
	}

	if _, ok := MixPresetByName("nonexistent"); ok {
		t.Fatal("expected lookup miss")
	}

	// empty name falls back to the default
	def, ok := MixPresetByName("")
	if !ok || def.Name != DefaultMixPreset {
		t.Fatalf("expected default preset, got %+v ok=%v", def, ok)
	}
}

func TestDryPresetHasNoReverb(t *testing.T) {
	p, ok := MixPresetByName("dry")
	if !ok {
		t.Fatal("expected dry preset")
	}
	if p.ReverbWet != 0 {
		t.Fatalf("dry preset must not add reverb, got wet=%f", p.ReverbWet)
	}
}

func TestVoiceModelsFilterByEngine(t *testing.T) {
	diffsinger := VoiceModels("diffsinger")
	if len(diffsinger) == 0 {
		t.Fatal("expected diffsinger voices")
	}
	for _, v := range diffsinger {
		if v.Engine != "diffsinger" {
			t.Fatalf("unexpected engine %q in filtered list", v.Engine)
		}
	}

	all := VoiceModels("")
	if len(all) <= len(diffsinger) {
		t.Fatalf("expected more voices overall, got %d vs %d", len(all), len(diffsinger))
	}
}

func TestVoiceModelByName(t *testing.T) {
	v, ok := VoiceModelByName("leif")
	if !ok {
		t.Fatal("expected leif voice")
	}
	if v.Engine != "diffsinger" {
		t.Fatalf("unexpected engine %q", v.Engine)
	}
}
