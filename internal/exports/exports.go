// Package exports converts the final mix into distribution formats under the
// project's exports directory. Lossy formats need ffmpeg; wav is a plain copy.
package exports

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"clovis/internal/artifacts"
	"clovis/internal/config"
	"clovis/internal/fileutil"
	"clovis/internal/services"
)

// Formats lists the supported export formats.
var Formats = []string{"wav", "mp3", "flac"}

// Convert renders the final mix into the requested format and returns the
// export path. The mix stage must have completed first.
func Convert(ctx context.Context, cfg *config.Config, layout artifacts.Layout, format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if !supported(format) {
		return "", services.Wrap(services.ErrValidation, "exports", "convert",
			fmt.Sprintf("unsupported export format %q (supported: %s)", format, strings.Join(Formats, ", ")), nil)
	}

	source := layout.FinalMix()
	if !fileutil.FileExists(source) {
		return "", services.Wrap(services.ErrValidation, "exports", "convert", "final mix has not been produced yet", nil)
	}
	if err := fileutil.EnsureDir(layout.ExportsDir()); err != nil {
		return "", services.Wrap(services.ErrProcessing, "exports", "convert", "failed to create exports directory", err)
	}

	target := filepath.Join(layout.ExportsDir(), "mix_final."+format)
	if format == "wav" {
		if err := fileutil.CopyFile(source, target); err != nil {
			return "", services.Wrap(services.ErrProcessing, "exports", "convert", "failed to copy mix", err)
		}
		return target, nil
	}

	binary := strings.TrimSpace(cfg.Engines.FFmpegBinary)
	if binary == "" {
		return "", services.Wrap(services.ErrEngineUnavailable, "exports", "convert", "ffmpeg binary not configured", nil)
	}
	if _, err := exec.LookPath(binary); err != nil {
		return "", services.Wrap(services.ErrEngineUnavailable, "exports", "convert",
			fmt.Sprintf("ffmpeg binary %q not found", binary), err)
	}

	if err := runFFmpeg(ctx, binary, source, target); err != nil {
		_ = os.Remove(target)
		return "", err
	}
	if !fileutil.FileExists(target) {
		return "", services.Wrap(services.ErrProcessing, "exports", "convert", "ffmpeg produced no output", nil)
	}
	return target, nil
}

func runFFmpeg(ctx context.Context, binary, source, target string) error {
	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner", "-loglevel", "error",
		"-y", "-i", source, target)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return services.Wrap(services.ErrTimeout, "exports", "convert", "ffmpeg interrupted", ctxErr)
	}
	detail := strings.TrimSpace(stderr.String())
	if len(detail) > 400 {
		detail = detail[len(detail)-400:]
	}
	msg := "ffmpeg failed"
	if detail != "" {
		msg += ": " + detail
	}
	return services.Wrap(services.ErrProcessing, "exports", "convert", msg, err)
}

func supported(format string) bool {
	for _, candidate := range Formats {
		if candidate == format {
			return true
		}
	}
	return false
}
