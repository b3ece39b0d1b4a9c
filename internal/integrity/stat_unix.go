//go:build unix

package integrity

import (
	"os"
	"syscall"
)

// statIdentity extracts the (device, inode, link-count) identity of a file
// from its already-collected os.FileInfo, used to detect hardlinks that
// reach outside the skill root (spec §4.B).
func statIdentity(info os.FileInfo) (dev, ino, nlink uint64, ok bool) {
	st, isStat := info.Sys().(*syscall.Stat_t)
	if !isStat {
		return 0, 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), uint64(st.Nlink), true
}
