package local

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadState reads the YAML side-file holding the serializable subset
// of REPL state. A missing file is treated as empty state, matching
// the first execution of a fresh session. YAML decodes nested maps as
// map[string]any (unlike encoding/json, which would hand back
// map[any]any for untyped data in older decoders), so the result binds
// back into goja without a conversion pass.
func loadState(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("local sandbox: read state file: %w", err)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var state map[string]any
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("local sandbox: parse state file: %w", err)
	}
	if state == nil {
		state = map[string]any{}
	}
	return state, nil
}

// saveState atomically replaces the side-file's contents with state: it
// either fully replaces the prior snapshot or, on write failure, leaves
// it untouched. There is no partial merge.
func saveState(path string, state map[string]any) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("local sandbox: marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("local sandbox: write state file: %w", err)
	}
	return os.Rename(tmp, path)
}
