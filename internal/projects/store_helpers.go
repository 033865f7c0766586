package projects

import (
	"database/sql"
	"errors"
	"time"
)

const projectColumns = "id, name, description, status, current_step, progress, error_message, run_token, instrumental_filename, audio_format, duration_seconds, sample_rate, bpm, musical_key, lyrics, language, synthesis_engine, voice_model, mix_preset, created_at, updated_at"

func scanProject(scanner interface{ Scan(dest ...any) error }) (*Project, error) {
	var (
		id              string
		name            string
		description     sql.NullString
		statusStr       string
		currentStep     sql.NullString
		progress        sql.NullInt64
		errorMessage    sql.NullString
		runToken        sql.NullString
		instrumental    sql.NullString
		audioFormat     sql.NullString
		durationSeconds sql.NullFloat64
		sampleRate      sql.NullInt64
		bpm             sql.NullFloat64
		musicalKey      sql.NullString
		lyrics          sql.NullString
		language        sql.NullString
		synthesisEngine sql.NullString
		voiceModel      sql.NullString
		mixPreset       sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&name,
		&description,
		&statusStr,
		&currentStep,
		&progress,
		&errorMessage,
		&runToken,
		&instrumental,
		&audioFormat,
		&durationSeconds,
		&sampleRate,
		&bpm,
		&musicalKey,
		&lyrics,
		&language,
		&synthesisEngine,
		&voiceModel,
		&mixPreset,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	project := &Project{
		ID:                   id,
		Name:                 name,
		Description:          description.String,
		Status:               Status(statusStr),
		CurrentStep:          Step(currentStep.String),
		Progress:             int(progress.Int64),
		ErrorMsg:             errorMessage.String,
		RunToken:             runToken.String,
		InstrumentalFilename: instrumental.String,
		AudioFormat:          audioFormat.String,
		DurationSeconds:      durationSeconds.Float64,
		SampleRate:           int(sampleRate.Int64),
		BPM:                  bpm.Float64,
		MusicalKey:           musicalKey.String,
		Lyrics:               lyrics.String,
		Language:             language.String,
		SynthesisEngine:      synthesisEngine.String,
		VoiceModel:           voiceModel.String,
		MixPreset:            mixPreset.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		project.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		project.UpdatedAt = updated
	}
	return project, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
