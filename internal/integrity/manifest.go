// Package integrity builds and re-derives the file-tree hash manifest that
// binds a skill's on-disk contents to its attestation. It is grounded on the
// teacher's skill-folder walk (pkg/skill.CanonicalizeSkill), generalized
// from a single concatenated root hash into the spec's path -> sha256 map,
// plus the filesystem-safety pre-check the teacher repo does not need
// because it never deals with hardlinked install trees.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Haldir-AI/haldir/internal/haldirerr"
)

// SchemaVersion is the current integrity manifest schema version.
const SchemaVersion = "1.0"

// Algorithm is the fixed hash algorithm used throughout Haldir.
const Algorithm = "sha256"

// VaultDir is the reserved directory name excluded from every manifest.
const VaultDir = ".vault"

// excludedDirNames are directory names skipped wholesale during the walk,
// in addition to VaultDir. The exact set is a short, source-encoded list
// per spec; whether .gitignore-style rules should extend it is unresolved
// (spec §9 Open Questions) — this repo does not guess, and treats the list
// as fixed.
var excludedDirNames = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// excludedFileNames are file names skipped wherever they occur.
var excludedFileNames = map[string]bool{
	".DS_Store": true,
}

// Manifest is the path -> content-hash map covering every regular file
// under a skill root except .vault/ and the exclusion set.
type Manifest struct {
	SchemaVersion string            `json:"schema_version"`
	Algorithm     string            `json:"algorithm"`
	Files         map[string]string `json:"files"`
	GeneratedAt   string            `json:"generated_at"`
}

// Violation describes a filesystem-safety pre-check failure for one path.
type Violation struct {
	Kind haldirerr.Kind
	Path string
}

// WalkOptions controls manifest derivation.
type WalkOptions struct {
	// SkipHardlinkCheck suppresses the "hardlinked outside skill root"
	// check. Sign never sets it; attest.Verify sets it while re-deriving
	// the manifest and runs the hardlink check as its own phase, which it
	// skips only in runtime context with the skip flag (spec §4.B).
	SkipHardlinkCheck bool

	// GeneratedAt stamps Manifest.GeneratedAt; if empty, the field is left
	// blank. The field is part of the canonical manifest and so of
	// integrity_hash; attest.Sign and attest.Verify both leave it empty so
	// the re-derived manifest hashes the same as the signed one.
	GeneratedAt string
}

// Build walks a skill root and produces its integrity manifest.
//
// I/O errors fail loudly with the offending path and never produce a
// partial manifest. Filesystem-safety violations (symlink escape, unsafe
// file types, hardlinks into the tree from outside it) are returned as a
// non-empty violation slice; Build still returns the manifest computed over
// the files it could safely hash so callers can decide whether to treat
// "flag at verify, abort at sign" per spec.
func Build(root string, opts WalkOptions) (*Manifest, []Violation, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity: failed to resolve skill root: %w", err)
	}
	absRoot, err = filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity: failed to resolve skill root symlinks: %w", err)
	}

	w := &walker{
		root:      absRoot,
		files:     make(map[string]string),
		linkGroup: make(map[linkKey][]string),
	}
	if err := w.walkDir(absRoot); err != nil {
		return nil, nil, err
	}

	violations := append([]Violation{}, w.violations...)
	if !opts.SkipHardlinkCheck {
		violations = append(violations, w.hardlinkViolations()...)
	}

	m := &Manifest{
		SchemaVersion: SchemaVersion,
		Algorithm:     Algorithm,
		Files:         w.files,
		GeneratedAt:   opts.GeneratedAt,
	}
	return m, violations, nil
}

type linkKey struct {
	dev uint64
	ino uint64
}

type walker struct {
	root       string
	files      map[string]string
	violations []Violation
	linkGroup  map[linkKey][]string // inode identity -> relpaths seen inside the tree
	nlinkTable map[linkKey]uint64   // inode identity -> kernel-reported link count
}

func (w *walker) walkDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("integrity: failed to read directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		fullPath := filepath.Join(dir, entry.Name())

		relPath, err := filepath.Rel(w.root, fullPath)
		if err != nil {
			return fmt.Errorf("integrity: failed to compute relative path for %s: %w", fullPath, err)
		}
		relPath = filepath.ToSlash(relPath)

		if relPath == VaultDir || strings.HasPrefix(relPath, VaultDir+"/") {
			continue
		}

		info, err := os.Lstat(fullPath)
		if err != nil {
			return fmt.Errorf("integrity: failed to stat %s: %w", fullPath, err)
		}

		if info.IsDir() {
			if excludedDirNames[entry.Name()] {
				continue
			}
			if err := w.walkDir(fullPath); err != nil {
				return err
			}
			continue
		}

		if excludedFileNames[entry.Name()] {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(fullPath)
			if err != nil {
				w.violations = append(w.violations, Violation{Kind: haldirerr.KindSymlinkEscape, Path: relPath})
				continue
			}
			if !isWithinRoot(w.root, target) {
				w.violations = append(w.violations, Violation{Kind: haldirerr.KindSymlinkEscape, Path: relPath})
			}
			// Symlinks that stay within the root are not hashed as their
			// own entry; the file they point to is hashed where it lives.
			continue
		}

		if !info.Mode().IsRegular() {
			w.violations = append(w.violations, Violation{Kind: haldirerr.KindUnsafeFileType, Path: relPath})
			continue
		}

		digest, err := hashFile(fullPath)
		if err != nil {
			return fmt.Errorf("integrity: failed to hash %s: %w", fullPath, err)
		}
		w.files[relPath] = "sha256:" + digest

		dev, ino, nlink, ok := statIdentity(info)
		if ok && nlink > 1 {
			key := linkKey{dev: dev, ino: ino}
			w.linkGroup[key] = append(w.linkGroup[key], relPath)
			w.nlinkByKey(key, nlink)
		}
	}
	return nil
}

// nlinkByKey records the kernel-reported link count per inode identity so
// hardlinkViolations can compare "links we found inside the tree" against
// "links the kernel knows about" without re-statting.
func (w *walker) nlinkByKey(key linkKey, nlink uint64) {
	if w.nlinkTable == nil {
		w.nlinkTable = make(map[linkKey]uint64)
	}
	w.nlinkTable[key] = nlink
}

// hardlinkViolations flags any inode whose kernel link count exceeds the
// number of paths this walk found for it inside the skill root — proof
// that at least one other link exists outside the tree (spec §4.B).
func (w *walker) hardlinkViolations() []Violation {
	var out []Violation
	for key, paths := range w.linkGroup {
		nlink := w.nlinkTable[key]
		if nlink > uint64(len(paths)) {
			for _, p := range paths {
				out = append(out, Violation{Kind: haldirerr.KindHardlinkViolation, Path: p})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func isWithinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path constructed from a bounded directory walk
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
