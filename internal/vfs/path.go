package vfs

import (
	"strings"

	"github.com/northernlights/weenix-go/internal/errno"
)

// Path length limits, per spec.md §6. A single canonical constant is used
// everywhere (spec.md §9 flags the source's drift between a literal 1024
// and a MAXPATHLEN macro as a bug to avoid repeating).
const (
	MaxPathLen = 1024
	NameLen    = 255
)

// ResolveContext supplies the two directories name resolution needs that
// this package otherwise has no way to know: the filesystem root and the
// caller's current working directory. internal/proc.Process owns the real
// Cwd reference; internal/fd passes it in here on every syscall so that
// this package never has to import internal/proc.
type ResolveContext struct {
	Root *Vnode
	Cwd  *Vnode
}

// splitComponents splits path on '/', collapsing consecutive slashes and
// dropping empty components, per spec.md §4.4. It is an explicit iterator
// over components rather than the in-place pointer surgery spec.md §9
// flags in the source's dir_namev.
func splitComponents(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func checkLengths(path string, comps []string) error {
	if len(path) > MaxPathLen {
		return errno.NameTooLong
	}
	for _, c := range comps {
		if len(c) > NameLen {
			return errno.NameTooLong
		}
	}
	return nil
}

// DirNamev resolves path to (parent vnode, basename), per spec.md §4.4.
// The returned parent carries exactly one reference the caller owes a Put
// for; basename is returned as a string (no allocation concerns carry over
// from the source's pointer-into-buffer convention, since Go strings are
// already immutable views).
func DirNamev(path string, rc ResolveContext) (parent *Vnode, basename string, err error) {
	if path == "" {
		return nil, "", errno.NoEntry
	}

	comps := splitComponents(path)
	if err := checkLengths(path, comps); err != nil {
		return nil, "", err
	}

	rooted := strings.HasPrefix(path, "/")

	// Edge case: a bare "." or ".." (no leading slash) resolves relative
	// to cwd directly, per spec.md §4.4 ("A bare "." or ".." yields
	// (cwd, "."/".."))." — it is not walked through lookup(cwd, "..")
	// first; that lookup only happens when more components follow.
	if !rooted && len(comps) == 1 && (comps[0] == "." || comps[0] == "..") {
		return rc.Cwd.Ref(), comps[0], nil
	}

	var start *Vnode
	remaining := comps
	switch {
	case rooted:
		start = rc.Root.Ref()
	case len(comps) > 0 && comps[0] == ".":
		start = rc.Cwd.Ref()
		remaining = comps[1:]
	case len(comps) > 0 && comps[0] == "..":
		parentOfCwd, lerr := Lookup(rc.Cwd, "..")
		if lerr != nil {
			return nil, "", lerr
		}
		start = parentOfCwd
		remaining = comps[1:]
	default:
		// Relative path with an implicit "./" (spec.md §4.4).
		start = rc.Cwd.Ref()
	}

	if len(remaining) == 0 {
		// Path was "/", "///", "./", or "../" with nothing after: the
		// starting directory is itself the target, conventionally named
		// "." relative to itself.
		return start, ".", nil
	}

	dir := start
	for i := 0; i < len(remaining)-1; i++ {
		next, lerr := Lookup(dir, remaining[i])
		dir.Put()
		if lerr != nil {
			return nil, "", lerr
		}
		dir = next
	}

	return dir, remaining[len(remaining)-1], nil
}

// Lookup, DirNamev, and the parent's Create op are the ingredients of
// OpenNamev — there is no third distinct bypass: "." and ".." are
// ordinary lookups because the one VnodeOps.Lookup driver in this tree,
// ramfs, special-cases "." / ".." (devfs vnodes have no Lookup op).

// OpenNamev resolves path to the target vnode, per spec.md §4.4, creating
// it via the parent's Create op if create is true and the name is
// otherwise absent.
func OpenNamev(path string, create bool, rc ResolveContext) (*Vnode, error) {
	parent, base, err := DirNamev(path, rc)
	if err != nil {
		return nil, err
	}

	child, err := Lookup(parent, base)
	switch {
	case err == nil:
		parent.Put()
		return child, nil

	case err == errno.NoEntry && create:
		if parent.Ops.Create == nil {
			parent.Put()
			return nil, errno.NotDir
		}
		created, cerr := parent.Ops.Create(parent, base)
		parent.Put()
		if cerr != nil {
			return nil, cerr
		}
		return created, nil

	default:
		parent.Put()
		return nil, err
	}
}
