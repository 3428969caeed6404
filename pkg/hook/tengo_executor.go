package hook

import (
	"context"
	"sync"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// TengoExecutor runs hook scripts written in Tengo.
type TengoExecutor struct {
	scripts map[Type]Hook
	mutex   sync.RWMutex
}

// NewTengoExecutor creates a new Tengo script executor.
func NewTengoExecutor() *TengoExecutor {
	return &TengoExecutor{
		scripts: make(map[Type]Hook),
	}
}

// Execute runs the script registered for hookType. A script reports failure
// by setting the global err to an error or a non-empty string.
func (e *TengoExecutor) Execute(ctx context.Context, hookType Type, hc Context) error {
	e.mutex.RLock()
	h, exists := e.scripts[hookType]
	e.mutex.RUnlock()
	if !exists {
		return nil
	}

	script := tengo.NewScript([]byte(h.Content))
	script.SetImports(stdlib.GetModuleMap(scriptModules...))

	for k, v := range hc.vars() {
		if err := script.Add(k, v); err != nil {
			return errors.Wrapf(errors.ErrHookExecution, "%s: variable %q: %v", hookType, k, err)
		}
	}

	compiled, err := script.RunContext(ctx)
	if err != nil {
		return errors.Wrapf(errors.ErrHookExecution, "%s (%s): %v", hookType, h.Source, err)
	}

	if errVar := compiled.Get("err"); errVar != nil {
		switch v := errVar.Value().(type) {
		case error:
			return errors.Wrap(errors.ErrHookScript, v.Error())
		case string:
			if v != "" {
				return errors.Wrap(errors.ErrHookScript, v)
			}
		}
	}
	return nil
}

// AddScript adds or replaces the script for h.Type.
func (e *TengoExecutor) AddScript(h Hook) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.scripts[h.Type] = h
}

// RemoveScript removes the script for hookType.
func (e *TengoExecutor) RemoveScript(hookType Type) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	delete(e.scripts, hookType)
}

// HasScript checks if a script exists for hookType.
func (e *TengoExecutor) HasScript(hookType Type) bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	_, exists := e.scripts[hookType]
	return exists
}
