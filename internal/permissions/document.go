// Package permissions parses the permissions document, normalizes both its
// canonical and legacy shapes into one typed policy, and compiles that
// policy into an OS-specific SpawnPolicy. The normalization step is
// grounded on the teacher's bundle.BundledDiscovery custom (Un)MarshalJSON,
// which solves exactly this "two JSON shapes, one struct" problem for
// discovery documents; here it resolves the "declared: {...}" vs.
// top-level-fields legacy permissions shape called out in spec §9.
package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaVersion is the current permissions document schema version.
const SchemaVersion = "1.0"

// NetworkMode enumerates the three declarable network policies.
type NetworkMode string

const (
	NetworkNone      NetworkMode = "none"
	NetworkAll       NetworkMode = "all"
	NetworkAllowlist NetworkMode = "allowlist"
)

// Network is the normalized network policy: either none, all, or an
// allowlist of host patterns.
type Network struct {
	Mode  NetworkMode
	Hosts []string
}

// MarshalJSON renders Network the way the spec's wire format expects:
// the bare string "none"/"all", or an array of host patterns.
func (n Network) MarshalJSON() ([]byte, error) {
	switch n.Mode {
	case NetworkNone, "":
		return json.Marshal("none")
	case NetworkAll:
		return json.Marshal("all")
	case NetworkAllowlist:
		hosts := n.Hosts
		if hosts == nil {
			hosts = []string{}
		}
		return json.Marshal(hosts)
	default:
		return nil, fmt.Errorf("permissions: unknown network mode %q", n.Mode)
	}
}

// UnmarshalJSON accepts either a string ("none"/"all") or a string array
// (an allowlist of host patterns).
func (n *Network) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "none", "":
			*n = Network{Mode: NetworkNone}
		case "all":
			*n = Network{Mode: NetworkAll}
		default:
			return fmt.Errorf("permissions: invalid network string %q", s)
		}
		return nil
	}

	var hosts []string
	if err := json.Unmarshal(data, &hosts); err != nil {
		return fmt.Errorf("permissions: network must be \"none\", \"all\", or a string array: %w", err)
	}
	*n = Network{Mode: NetworkAllowlist, Hosts: hosts}
	return nil
}

// AgentCapabilities is the declared set of agent-level capabilities.
type AgentCapabilities struct {
	MemoryRead         bool `json:"memory_read,omitempty"`
	MemoryWrite        bool `json:"memory_write,omitempty"`
	SpawnAgents        bool `json:"spawn_agents,omitempty"`
	ModifySystemPrompt bool `json:"modify_system_prompt,omitempty"`
}

// Filesystem is the declared read/write path lists.
type Filesystem struct {
	Read  []string `json:"read,omitempty"`
	Write []string `json:"write,omitempty"`
}

// Declared is the normalized body of a permissions document. Every field is
// optional; absence means deny, per spec §3.
type Declared struct {
	Filesystem        Filesystem        `json:"filesystem,omitempty"`
	Network           Network           `json:"network,omitempty"`
	Exec              []string          `json:"exec,omitempty"`
	AgentCapabilities AgentCapabilities `json:"agent_capabilities,omitempty"`
}

// Document is the normalized, canonical-shape permissions document: always
// {"schema_version":..., "declared": {...}} regardless of what shape it was
// parsed from.
type Document struct {
	SchemaVersion string   `json:"schema_version"`
	Declared      Declared `json:"declared"`
}

// DenyAll returns the default permissions document: every axis denied.
func DenyAll() *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		Declared:      Declared{Network: Network{Mode: NetworkNone}},
	}
}

// rawDocument accepts either a "declared" wrapper or Declared's fields at
// the top level of the raw document, for the pre-"declared wrapper"
// permissions documents spec §9 says may still appear.
type rawDocument struct {
	SchemaVersion string    `json:"schema_version"`
	Declared      *Declared `json:"declared,omitempty"`
	Filesystem    *Filesystem `json:"filesystem,omitempty"`
	Network       *Network    `json:"network,omitempty"`
	Exec          []string    `json:"exec,omitempty"`
	AgentCaps     *AgentCapabilities `json:"agent_capabilities,omitempty"`
}

// Parse normalizes a permissions document from either its canonical
// {"declared": {...}} shape or the legacy top-level-fields shape into one
// typed Document. All later code in this repo only ever sees the result of
// Parse — no caller inspects the raw JSON shape.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("permissions: invalid document: %w", err)
	}

	doc := &Document{SchemaVersion: raw.SchemaVersion}
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = SchemaVersion
	}

	switch {
	case raw.Declared != nil:
		doc.Declared = *raw.Declared
	default:
		if raw.Filesystem != nil {
			doc.Declared.Filesystem = *raw.Filesystem
		}
		if raw.Network != nil {
			doc.Declared.Network = *raw.Network
		}
		doc.Declared.Exec = raw.Exec
		if raw.AgentCaps != nil {
			doc.Declared.AgentCapabilities = *raw.AgentCaps
		}
	}

	if doc.Declared.Network.Mode == "" {
		doc.Declared.Network.Mode = NetworkNone
	}

	normalizePathLists(&doc.Declared.Filesystem)
	return doc, nil
}

// normalizePathLists sorts and de-duplicates path declarations so two
// semantically equal documents always canonicalize identically regardless
// of declaration order.
func normalizePathLists(fs *Filesystem) {
	fs.Read = sortUnique(fs.Read)
	fs.Write = sortUnique(fs.Write)
}

func sortUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
