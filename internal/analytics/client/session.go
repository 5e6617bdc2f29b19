package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// defaultStateFile holds the session identity under the user config dir.
const defaultStateFile = "kiosk-analytics/session"

// loadOrCreateSessionID establishes the per-installation session identity:
// read it from the state file when present, otherwise generate one and
// persist it so every process on this device reports the same session.
func loadOrCreateSessionID(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(configDir, defaultStateFile)
	}

	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read session file: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write session file: %w", err)
	}
	return id, nil
}
