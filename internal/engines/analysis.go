package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"clovis/internal/audio"
	"clovis/internal/services"
)

const analysisStage = "analysis"

// probeResult is the slice of ffprobe JSON output analysis cares about.
type probeResult struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// FFprobeAnalyzer inspects the instrumental with ffprobe for exact duration
// and sample rate, then estimates tempo and key from the decoded audio.
type FFprobeAnalyzer struct {
	Binary string
}

func (a *FFprobeAnalyzer) Name() string { return "ffprobe" }

func (a *FFprobeAnalyzer) Available(ctx context.Context) error {
	return checkBinary(analysisStage, "ffprobe", a.Binary)
}

func (a *FFprobeAnalyzer) Execute(ctx context.Context, req Request) (*Result, error) {
	path, ok := req.Layout.FindInstrumental()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, analysisStage, "probe",
			"no instrumental uploaded", nil)
	}

	req.Report(10, "probing instrumental")
	output, err := runCommand(ctx, analysisStage, a.Binary,
		"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return nil, err
	}

	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, services.Wrap(services.ErrProcessing, analysisStage, "probe",
			"ffprobe produced unreadable output", err)
	}

	result := &Result{Engine: a.Name()}
	result.DurationSeconds, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
			result.SampleRate = rate
		}
		break
	}
	if result.DurationSeconds <= 0 {
		return nil, services.Wrap(services.ErrProcessing, analysisStage, "probe",
			"instrumental has no decodable duration", nil)
	}

	req.Report(55, "estimating tempo and key")
	result.BPM, result.MusicalKey = estimateMusicality(path, result.SampleRate)
	req.Report(100, "analysis complete")
	return result, nil
}

// BuiltinAnalyzer derives metadata without external tools. WAV uploads are
// decoded and measured; other formats get a size-based duration estimate and
// neutral defaults. It never fails.
type BuiltinAnalyzer struct{}

func (a *BuiltinAnalyzer) Name() string { return "builtin-analysis" }

func (a *BuiltinAnalyzer) Available(ctx context.Context) error { return nil }

func (a *BuiltinAnalyzer) Execute(ctx context.Context, req Request) (*Result, error) {
	path, ok := req.Layout.FindInstrumental()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, analysisStage, "analyze",
			"no instrumental uploaded", nil)
	}

	result := &Result{
		Engine:     a.Name(),
		SampleRate: 44100,
		BPM:        defaultBPM,
		MusicalKey: defaultKey,
	}

	req.Report(20, "decoding instrumental")
	if buf, err := audio.ReadWAVFile(path); err == nil {
		result.DurationSeconds = buf.Duration().Seconds()
		result.SampleRate = buf.SampleRate
		req.Report(60, "estimating tempo and key")
		result.BPM = estimateBPM(buf)
		result.MusicalKey = estimateKey(buf)
	} else {
		// compressed formats: approximate duration from size at 128 kbps
		info, statErr := os.Stat(path)
		if statErr != nil {
			return nil, services.Wrap(services.ErrProcessing, analysisStage, "analyze",
				fmt.Sprintf("cannot stat %s", path), statErr)
		}
		result.DurationSeconds = float64(info.Size()) / (128_000.0 / 8)
		if result.DurationSeconds < 1 {
			result.DurationSeconds = 1
		}
	}

	req.Report(100, "analysis complete")
	return result, nil
}

// estimateMusicality estimates tempo and key for any format, decoding WAV
// when possible and falling back to neutral defaults otherwise.
func estimateMusicality(path string, sampleRate int) (float64, string) {
	if strings.HasSuffix(strings.ToLower(path), ".wav") {
		if buf, err := audio.ReadWAVFile(path); err == nil {
			return estimateBPM(buf), estimateKey(buf)
		}
	}
	_ = sampleRate
	return defaultBPM, defaultKey
}
