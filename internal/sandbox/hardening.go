package sandbox

import (
	"fmt"
	"regexp"

	"github.com/nanoclaw/orchestrator/internal/store"
)

// containerNamePattern is what survives container-name sanitization.
var containerNamePattern = regexp.MustCompile(`[^A-Za-z0-9-]`)

// sanitizeContainerName strips everything but [A-Za-z0-9-] from folder and
// prefixes it so colliding folder names across restarts never collide with
// an unrelated container still shutting down.
func sanitizeContainerName(folder string) (string, error) {
	name := containerNamePattern.ReplaceAllString(folder, "")
	if name == "" {
		return "", fmt.Errorf("sandbox: folder %q sanitizes to an empty container name", folder)
	}
	return "nanoclaw-" + name, nil
}

// envAllowList are the only host environment variables ever forwarded into
// a sandbox container. Secrets are passed via stdin, never here.
var envAllowList = []string{
	"PATH",
	"LANG",
	"TZ",
}

// dockerRunArgs builds the `docker run` argument list implementing the
// hardening defaults: no network, no capabilities, no new privileges,
// read-only rootfs with a writable tmpfs scratch area, and bounded
// resources. mounts are validated container_config extra mounts. The
// per-run hard limit is not part of these arguments; Start enforces it
// through the command's context.
func dockerRunArgs(image, containerName string, mounts []store.ContainerMount) []string {
	args := []string{
		"run", "--rm", "-i",
		"--name", containerName,
		"--network", "none",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--read-only",
		"--tmpfs", "/tmp:rw,size=64m",
		"--memory", "512m",
		"--cpus", "1",
		"--pids-limit", "128",
	}
	for _, v := range envAllowList {
		args = append(args, "-e", v)
	}
	for _, m := range mounts {
		mode := "ro"
		if m.Writable {
			mode = "rw"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s", m.HostPath, m.ContainerPath, mode))
	}
	args = append(args, image)
	return args
}
