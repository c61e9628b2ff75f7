package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nanoclaw/orchestrator/internal/config"
	"github.com/nanoclaw/orchestrator/internal/ipc"
	"github.com/nanoclaw/orchestrator/internal/store"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the orchestrator's dependencies are reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context())
		},
	}
}

type check struct {
	name string
	err  error
}

func runDoctor(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	checks := []check{
		{"sandbox runtime (docker)", checkDocker(ctx)},
		{"persistence store", checkStore(ctx, cfg)},
		{"ipc root writable", checkIPCRoot(cfg)},
	}
	if cfg.Channels.Telegram.Enabled {
		checks = append(checks, check{"telegram credentials", checkNonEmpty(cfg.Channels.Telegram.Token, "token")})
	}
	if cfg.Channels.Discord.Enabled {
		checks = append(checks, check{"discord credentials", checkNonEmpty(cfg.Channels.Discord.Token, "token")})
	}
	if cfg.Channels.WhatsApp.Enabled {
		checks = append(checks, check{"whatsapp device store", checkFileExists(cfg.Channels.WhatsApp.DeviceDBPath)})
	}

	failed := false
	for _, c := range checks {
		if c.err != nil {
			fmt.Printf("FAIL  %s: %v\n", c.name, c.err)
			failed = true
		} else {
			fmt.Printf("OK    %s\n", c.name)
		}
	}
	if failed {
		return fmt.Errorf("one or more checks failed")
	}
	fmt.Println("All checks passed.")
	return nil
}

func checkDocker(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "version").Run(); err != nil {
		return fmt.Errorf("docker not reachable: %w", err)
	}
	return nil
}

func checkStore(ctx context.Context, cfg config.Config) error {
	st, err := store.Open(ctx, store.DefaultPath(cfg.DataDir))
	if err != nil {
		return err
	}
	return st.Close()
}

func checkIPCRoot(cfg config.Config) error {
	root := ipc.Root(cfg.DataDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(root, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

func checkNonEmpty(v, field string) error {
	if v == "" {
		return fmt.Errorf("missing %s", field)
	}
	return nil
}

func checkFileExists(path string) error {
	if path == "" {
		return fmt.Errorf("device_db_path not configured — run `nanoclaw onboard --channel whatsapp`")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return nil
}
