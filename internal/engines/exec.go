package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"clovis/internal/services"
)

// checkBinary probes for a configured external command.
func checkBinary(stage, name, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return services.Wrap(services.ErrEngineUnavailable, stage, "probe",
			fmt.Sprintf("%s binary not configured", name), nil)
	}
	if _, err := exec.LookPath(command); err != nil {
		return services.Wrap(services.ErrEngineUnavailable, stage, "probe",
			fmt.Sprintf("%s binary %q not found", name, command), err)
	}
	return nil
}

// runCommand executes an external engine binary and captures stdout. A killed
// context maps to the timeout marker; a non-zero exit maps to a transient
// failure so the adapter retries before falling back.
func runCommand(ctx context.Context, stage string, command string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, services.Wrap(services.ErrTimeout, stage, "exec",
			fmt.Sprintf("%s interrupted", command), ctxErr)
	}

	detail := strings.TrimSpace(stderr.String())
	if len(detail) > 400 {
		detail = detail[len(detail)-400:]
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := fmt.Sprintf("%s exited with code %d", command, exitErr.ExitCode())
		if detail != "" {
			msg += ": " + detail
		}
		return nil, services.Wrap(services.ErrTransient, stage, "exec", msg, err)
	}
	return nil, services.Wrap(services.ErrTransient, stage, "exec",
		fmt.Sprintf("%s failed to run", command), err)
}
