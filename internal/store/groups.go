package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ContainerMount is one extra bind mount a group's container_config grants
// its sandbox, beyond the sandbox image's own baked-in filesystem.
type ContainerMount struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
	Writable      bool   `json:"writable"`
}

// ContainerConfig is a group's per-folder sandbox overrides.
type ContainerConfig struct {
	Mounts          []ContainerMount `json:"mounts,omitempty"`
	TimeoutOverride string           `json:"timeout_override,omitempty"`
}

// folderPattern constrains folder identifiers to what is safe to use as a
// directory name and a docker container name component.
var folderPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ErrInvalidFolder is returned when a folder identifier fails folderPattern.
var ErrInvalidFolder = errors.New("invalid folder identifier")

// ValidateFolder checks a folder identifier against the allowed character
// set. Callers at every trust boundary (IPC frames, registration commands)
// must call this before using the value in a filesystem or container path.
func ValidateFolder(folder string) error {
	if folder == "" || !folderPattern.MatchString(folder) {
		return fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
	}
	return nil
}

// RegisteredGroup is a chat the orchestrator has bound to a sandbox folder.
type RegisteredGroup struct {
	Folder          string    `db:"folder"`
	ChatID          string    `db:"chat_id"`
	Channel         string    `db:"channel"`
	Name            string    `db:"name"`
	IsMain          bool      `db:"is_main"`
	RequiresTrigger bool      `db:"requires_trigger"`
	TriggerPattern  string    `db:"trigger_pattern"`
	ContainerConfig string    `db:"container_config"` // JSON-encoded ContainerConfig
	CreatedAt       time.Time `db:"created_at"`
}

// DecodeContainerConfig unmarshals the group's stored container_config. An
// empty or invalid value decodes to a zero ContainerConfig rather than
// erroring — sandbox launch falls back to image defaults.
func (g *RegisteredGroup) DecodeContainerConfig() ContainerConfig {
	var cc ContainerConfig
	if g.ContainerConfig == "" {
		return cc
	}
	_ = json.Unmarshal([]byte(g.ContainerConfig), &cc)
	return cc
}

// RegisterGroup inserts a new group, or updates the mutable fields of an
// existing one keyed by folder.
func (s *Store) RegisterGroup(ctx context.Context, g RegisteredGroup) error {
	if err := ValidateFolder(g.Folder); err != nil {
		return err
	}
	if g.ContainerConfig == "" {
		g.ContainerConfig = "{}"
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.NamedExecContext(ctx, `
			INSERT INTO registered_groups (folder, chat_id, channel, name, is_main, requires_trigger, trigger_pattern, container_config)
			VALUES (:folder, :chat_id, :channel, :name, :is_main, :requires_trigger, :trigger_pattern, :container_config)
			ON CONFLICT(folder) DO UPDATE SET
				name = excluded.name,
				requires_trigger = excluded.requires_trigger,
				trigger_pattern = excluded.trigger_pattern,
				container_config = excluded.container_config;
		`, g)
		if err != nil {
			return fmt.Errorf("register group %s: %w", g.Folder, wrap(err))
		}
		return nil
	})
}

// UpdateGroupName updates a registered group's display name, used by
// refresh_groups to re-sync a stale name without touching any other field.
func (s *Store) UpdateGroupName(ctx context.Context, folder, name string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE registered_groups SET name = ? WHERE folder = ?;`, name, folder)
		if err != nil {
			return fmt.Errorf("update group name %s: %w", folder, wrap(err))
		}
		return nil
	})
}

// GetGroupByFolder returns the group bound to folder, or ErrNotFound.
func (s *Store) GetGroupByFolder(ctx context.Context, folder string) (*RegisteredGroup, error) {
	var g RegisteredGroup
	err := s.db.GetContext(ctx, &g, `SELECT * FROM registered_groups WHERE folder = ?;`, folder)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group by folder: %w", wrap(err))
	}
	return &g, nil
}

// GetGroupByChat returns the group bound to a (chat_id, channel) pair, or ErrNotFound.
func (s *Store) GetGroupByChat(ctx context.Context, chatID, channel string) (*RegisteredGroup, error) {
	var g RegisteredGroup
	err := s.db.GetContext(ctx, &g, `SELECT * FROM registered_groups WHERE chat_id = ? AND channel = ?;`, chatID, channel)
	if isNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group by chat: %w", wrap(err))
	}
	return &g, nil
}

// ListGroups returns every registered group, ordered by folder.
func (s *Store) ListGroups(ctx context.Context) ([]RegisteredGroup, error) {
	var groups []RegisteredGroup
	if err := s.db.SelectContext(ctx, &groups, `SELECT * FROM registered_groups ORDER BY folder;`); err != nil {
		return nil, fmt.Errorf("list groups: %w", wrap(err))
	}
	return groups, nil
}

// MainFolder returns the folder flagged is_main, or ErrNotFound if none is configured yet.
func (s *Store) MainFolder(ctx context.Context) (string, error) {
	var folder string
	err := s.db.GetContext(ctx, &folder, `SELECT folder FROM registered_groups WHERE is_main = 1 LIMIT 1;`)
	if isNoRows(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get main folder: %w", wrap(err))
	}
	return folder, nil
}
