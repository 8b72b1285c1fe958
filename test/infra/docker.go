package infra

import (
	"context"
	"io"
	"os/exec"
)

// DockerAvailable reports whether a docker daemon answers `docker info`.
func DockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
