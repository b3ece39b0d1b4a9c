package permissions

import (
	"path/filepath"
)

// Policy is the resolved, absolute-path policy derived from a Document: the
// compiler's input. Paths are resolved against a skill root at this stage so
// every backend downstream works with absolute paths only.
type Policy struct {
	FilesystemRead  []string
	FilesystemWrite []string
	Network         Network
	// ExecAllowlist is the declared executable allowlist. Exec is the
	// simplified boolean the spec's §4.E Policy type names; ExecAllowlist
	// is kept alongside it because a real compiler needs the specific
	// entries to build backend rules (e.g. which paths get execute bits).
	ExecAllowlist []string
	Exec          bool
	AgentCapabilities
}

// Resolve turns a Document's Declared permissions into an absolute-path
// Policy, resolving relative paths against skillRoot.
func Resolve(doc *Document, skillRoot string) *Policy {
	p := &Policy{
		FilesystemRead:    resolvePaths(doc.Declared.Filesystem.Read, skillRoot),
		FilesystemWrite:   resolvePaths(doc.Declared.Filesystem.Write, skillRoot),
		Network:           doc.Declared.Network,
		ExecAllowlist:     doc.Declared.Exec,
		Exec:              len(doc.Declared.Exec) > 0,
		AgentCapabilities: doc.Declared.AgentCapabilities,
	}
	return p
}

func resolvePaths(paths []string, root string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if filepath.IsAbs(p) {
			out = append(out, filepath.Clean(p))
		} else {
			out = append(out, filepath.Clean(filepath.Join(root, p)))
		}
	}
	return out
}
