//go:build !unix

package integrity

import "os"

// statIdentity has no portable inode/link-count story outside unix; the
// hardlink check is simply unavailable here (ok=false), matching the
// sandbox backends' general stance that Windows is not a supported target
// for permissions enforcement in this repo.
func statIdentity(info os.FileInfo) (dev, ino, nlink uint64, ok bool) {
	return 0, 0, 0, false
}
