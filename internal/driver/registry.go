package driver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ertembiyik/rlm-engine/internal/router"
	"github.com/ertembiyik/rlm-engine/internal/sandbox"
	"github.com/ertembiyik/rlm-engine/internal/sandbox/container"
	"github.com/ertembiyik/rlm-engine/internal/sandbox/local"
)

// backendSpec names one registered sandbox backend: how to construct a
// fresh session bound to a router address, and whether it declares the
// persistence extension.
type backendSpec struct {
	construct  func(addr router.Address, config map[string]any) sandbox.Session
	persistent bool
}

var backendRegistry = map[string]backendSpec{
	"local": {
		construct:  newLocalSession,
		persistent: true,
	},
	"container": {
		construct:  newContainerSession,
		persistent: false,
	},
}

func newLocalSession(addr router.Address, config map[string]any) sandbox.Session {
	var opts []local.Option
	if dir, ok := config["base_dir"].(string); ok && dir != "" {
		opts = append(opts, local.WithBaseDir(dir))
	}
	return local.New(addr, opts...)
}

func newContainerSession(addr router.Address, config map[string]any) sandbox.Session {
	var opts []container.Option
	if dir, ok := config["base_dir"].(string); ok && dir != "" {
		opts = append(opts, container.WithBaseDir(dir))
	}
	if image, ok := config["image"].(string); ok && image != "" {
		opts = append(opts, container.WithImage(image))
	}
	return container.New(addr, opts...)
}

// lookupBackend validates a requested backend name, and if persistent
// is true, that the backend declares the persistence extension. Either
// failure is a configuration error, fatal at construction.
func lookupBackend(name string, persistent bool) (backendSpec, error) {
	spec, ok := backendRegistry[name]
	if !ok {
		return backendSpec{}, fmt.Errorf("driver: unknown sandbox backend %q (supported: %s)",
			name, strings.Join(supportedBackendNames(), ", "))
	}
	if persistent && !spec.persistent {
		return backendSpec{}, fmt.Errorf(
			"driver: persistent=true requires a backend with the persistence extension, %q does not declare it (supported: %s)",
			name, strings.Join(supportedPersistentBackendNames(), ", "))
	}
	return spec, nil
}

func supportedBackendNames() []string {
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func supportedPersistentBackendNames() []string {
	var names []string
	for name, spec := range backendRegistry {
		if spec.persistent {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
