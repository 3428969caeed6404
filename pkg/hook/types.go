package hook

import "context"

// Type names the point in a fetch job at which a hook runs.
type Type string

const (
	// PostFetch runs after a wordlist was transferred and post-processed.
	PostFetch Type = "post-fetch"
)

// Hook is a script bound to a hook type.
type Hook struct {
	Type    Type
	Content string
	// Source is where the script was loaded from, for error messages.
	Source string
}

// Context is exposed to scripts as the variables entryName, group, path,
// outputs and verdict.
type Context struct {
	EntryName string
	Group     string
	// Path is the fetched artifact; it may already be removed when it was
	// decompressed.
	Path    string
	Outputs []string
	// Verdict is the integrity check result, e.g. "verified".
	Verdict string
}

// scriptModules are the Tengo standard modules hooks may import.
var scriptModules = []string{"fmt", "os", "text", "times", "json"}

func (hc Context) vars() map[string]interface{} {
	outputs := make([]interface{}, 0, len(hc.Outputs))
	for _, o := range hc.Outputs {
		outputs = append(outputs, o)
	}
	return map[string]interface{}{
		"entryName": hc.EntryName,
		"group":     hc.Group,
		"path":      hc.Path,
		"outputs":   outputs,
		"verdict":   hc.Verdict,
		"err":       "",
	}
}

// Runner is what the dispatcher needs from a hook manager.
type Runner interface {
	Execute(ctx context.Context, hookType Type, hc Context) error
	HasHook(hookType Type) bool
}
