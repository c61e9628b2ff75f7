package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanoclaw/orchestrator/internal/channels/whatsapp"
	"github.com/nanoclaw/orchestrator/internal/config"
)

func onboardCmd() *cobra.Command {
	var channel string
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Interactively configure a chat channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(channel)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "channel to configure: telegram, discord, or whatsapp")
	return cmd
}

func runOnboard(channel string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reader := bufio.NewReader(os.Stdin)
	if channel == "" {
		channel = prompt(reader, "Channel to configure (telegram/discord/whatsapp)")
	}

	switch strings.ToLower(channel) {
	case "telegram":
		token := prompt(reader, "Telegram bot token")
		cfg.Channels.Telegram.Token = token
		cfg.Channels.Telegram.Enabled = token != ""
	case "discord":
		token := prompt(reader, "Discord bot token")
		cfg.Channels.Discord.Token = token
		cfg.Channels.Discord.Enabled = token != ""
	case "whatsapp":
		dbPath := cfg.Channels.WhatsApp.DeviceDBPath
		if dbPath == "" {
			dbPath = filepath.Join(cfg.DataDir, "whatsapp.db")
		}
		if err := whatsapp.Onboard(dbPath); err != nil {
			return fmt.Errorf("whatsapp onboard: %w", err)
		}
		cfg.Channels.WhatsApp.DeviceDBPath = dbPath
		cfg.Channels.WhatsApp.Enabled = true
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println("Saved. Run `nanoclaw serve` to start.")
	return nil
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}
