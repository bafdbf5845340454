// Package fileid derives stable document ids and change stamps for files on disk.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
)

const prefix = "file_"

// Metadata keys under which a Stamp is recorded on a document.
const (
	KeyPath  = "source_path"
	KeyMtime = "source_mtime"
	KeySize  = "source_size"
)

// DocID returns a stable document id for the given absolute path. The same cleaned path
// always yields the same id, so a re-ingested file keeps its registry record.
func DocID(absolutePath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(absolutePath)))
	return prefix + hex.EncodeToString(sum[:8])
}

// Stamp identifies one version of a file by path, modification time and size.
type Stamp struct {
	Path  string
	Mtime int64
	Size  int64
}

// StampOf returns the stamp for path and its file info.
func StampOf(absolutePath string, info os.FileInfo) Stamp {
	return Stamp{
		Path:  filepath.Clean(absolutePath),
		Mtime: info.ModTime().UnixNano(),
		Size:  info.Size(),
	}
}

// Metadata encodes the stamp. Integers are written as strings since UnixNano does not fit
// a float64 exactly.
func (s Stamp) Metadata() map[string]interface{} {
	return map[string]interface{}{
		KeyPath:  s.Path,
		KeyMtime: strconv.FormatInt(s.Mtime, 10),
		KeySize:  strconv.FormatInt(s.Size, 10),
	}
}

// Matches reports whether metadata records the same file version.
func (s Stamp) Matches(metadata map[string]interface{}) bool {
	if metadata == nil {
		return false
	}
	if p, _ := metadata[KeyPath].(string); p != s.Path {
		return false
	}
	return int64Value(metadata[KeyMtime]) == s.Mtime && int64Value(metadata[KeySize]) == s.Size
}

func int64Value(v interface{}) int64 {
	switch n := v.(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
