package sandbox

import (
	"strings"
	"testing"

	"github.com/nanoclaw/orchestrator/internal/store"
)

func TestSanitizeContainerName(t *testing.T) {
	cases := []struct {
		folder  string
		want    string
		wantErr bool
	}{
		{folder: "my-folder", want: "nanoclaw-my-folder"},
		{folder: "weird/folder name!!", want: "nanoclaw-weirdfoldername"},
		{folder: "../../etc", want: "nanoclaw-etc"},
		{folder: "!!!", wantErr: true},
		{folder: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := sanitizeContainerName(c.folder)
		if c.wantErr {
			if err == nil {
				t.Errorf("folder %q: expected an error, got %q", c.folder, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("folder %q: unexpected error: %v", c.folder, err)
			continue
		}
		if got != c.want {
			t.Errorf("folder %q: got %q, want %q", c.folder, got, c.want)
		}
	}
}

func TestDockerRunArgsHardeningDefaults(t *testing.T) {
	args := dockerRunArgs("nanoclaw/agent:latest", "nanoclaw-test", nil)
	joined := strings.Join(args, " ")
	for _, want := range []string{"--network none", "--cap-drop ALL", "--read-only", "no-new-privileges"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected docker args to contain %q, got %q", want, joined)
		}
	}
	if args[len(args)-1] != "nanoclaw/agent:latest" {
		t.Errorf("expected image to be the final argument, got %q", args[len(args)-1])
	}
}

func TestDockerRunArgsMounts(t *testing.T) {
	mounts := []store.ContainerMount{
		{HostPath: "/host/ro", ContainerPath: "/container/ro", Writable: false},
		{HostPath: "/host/rw", ContainerPath: "/container/rw", Writable: true},
	}
	args := dockerRunArgs("img", "name", mounts)
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "/host/ro:/container/ro:ro") {
		t.Errorf("expected read-only mount in args, got %q", joined)
	}
	if !strings.Contains(joined, "/host/rw:/container/rw:rw") {
		t.Errorf("expected writable mount in args, got %q", joined)
	}
}
