package container

import (
	"encoding/json"
	"fmt"
	"os"
)

// loadState reads the JSON side-file holding the serializable subset of
// REPL state. A missing file is treated as empty state.
func loadState(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("container sandbox: read state file: %w", err)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var state map[string]any
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("container sandbox: parse state file: %w", err)
	}
	return state, nil
}

// saveState atomically replaces the side-file's contents with state.
// The child interpreter has already dropped any value that failed to
// round-trip through JSON before printing its state snapshot, so
// everything reaching this function is safe to persist verbatim.
func saveState(path string, state map[string]any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("container sandbox: marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("container sandbox: write state file: %w", err)
	}
	return os.Rename(tmp, path)
}
