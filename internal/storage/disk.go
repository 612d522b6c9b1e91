package storage

import (
	"os"
	"path/filepath"
)

// DiskUsage reports the on-disk footprint of the database and the full-text index.
type DiskUsage struct {
	DatabaseBytes int64 `json:"database_bytes"`
	IndexBytes    int64 `json:"index_bytes"`
}

// Total returns the combined size.
func (u DiskUsage) Total() int64 { return u.DatabaseBytes + u.IndexBytes }

// Usage measures the SQLite file (with its WAL and shared-memory siblings) and the
// index directory. Client-server databases and in-memory indexes count as zero.
func (s *SQLStore) Usage(indexPath string) (DiskUsage, error) {
	var u DiskUsage
	if s.path != "" {
		n, err := DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
		if err != nil {
			return u, err
		}
		u.DatabaseBytes = n
	}
	n, err := DiskUsageBytes(indexPath)
	if err != nil {
		return u, err
	}
	u.IndexBytes = n
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing paths are skipped; errors during walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.WalkDir(p, func(_ string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
