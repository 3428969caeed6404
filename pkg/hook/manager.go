package hook

import (
	"context"
	"os"
	"path/filepath"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// Manager holds the configured hooks. It is safe for concurrent use.
type Manager struct {
	executor *TengoExecutor
}

// NewManager creates an empty hook manager.
func NewManager() *Manager {
	return &Manager{executor: NewTengoExecutor()}
}

// Execute runs hookType if a script is registered for it.
func (m *Manager) Execute(ctx context.Context, hookType Type, hc Context) error {
	return m.executor.Execute(ctx, hookType, hc)
}

// AddHook compiles h once to surface syntax errors early, then registers it.
func (m *Manager) AddHook(h Hook) error {
	if h.Type == "" {
		return errors.Wrap(errors.ErrHookLoad, "hook type cannot be empty")
	}
	if err := checkSyntax(h); err != nil {
		return err
	}
	m.executor.AddScript(h)
	return nil
}

// RemoveHook removes the hook of hookType.
func (m *Manager) RemoveHook(hookType Type) {
	m.executor.RemoveScript(hookType)
}

// HasHook reports whether a hook of hookType is registered.
func (m *Manager) HasHook(hookType Type) bool {
	return m.executor.HasScript(hookType)
}

// LoadFile registers the script at path for hookType. An empty path is a
// no-op.
func (m *Manager) LoadFile(hookType Type, path string) error {
	if path == "" {
		return nil
	}
	if filepath.Ext(path) != ".tengo" {
		return errors.Wrapf(errors.ErrHookLoad, "%s: hook scripts must have the .tengo extension", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(errors.ErrHookLoad, "%s: %v", path, err)
	}
	return m.AddHook(Hook{Type: hookType, Content: string(content), Source: path})
}

// checkSyntax compiles the script with placeholder variables.
func checkSyntax(h Hook) error {
	script := tengo.NewScript([]byte(h.Content))
	script.SetImports(stdlib.GetModuleMap(scriptModules...))
	for k, v := range (Context{}).vars() {
		_ = script.Add(k, v)
	}
	if _, err := script.Compile(); err != nil {
		return errors.Wrapf(errors.ErrHookScript, "%s: %v", h.Source, err)
	}
	return nil
}
