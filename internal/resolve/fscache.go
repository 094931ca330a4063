package resolve

import (
	"os"
	"path/filepath"
)

// fsCache memoizes case-insensitive directory listings so a lookup path
// with many entries sharing the same directories (System32 appears once
// per candidate DLL) only enumerates each directory once. Grounded on
// original_source/src/system.rs's WinFileSystemCache.
type fsCache struct {
	filesInDirs map[string]map[string]string // directory -> lowercased name -> real name
	scanErrors  map[string]error
}

func newFSCache() *fsCache {
	return &fsCache{
		filesInDirs: make(map[string]map[string]string),
		scanErrors:  make(map[string]error),
	}
}

// probe looks for filename (case-insensitively) in directory, returning the
// full path using the on-disk case if found.
func (c *fsCache) probe(filename, directory string) (string, bool) {
	entries, err := c.scan(directory)
	if err != nil {
		return "", false
	}
	real, ok := entries[normalize(filename)]
	if !ok {
		return "", false
	}
	return filepath.Join(directory, real), true
}

func (c *fsCache) scan(directory string) (map[string]string, error) {
	if entries, ok := c.filesInDirs[directory]; ok {
		return entries, nil
	}
	if err, ok := c.scanErrors[directory]; ok {
		return nil, err
	}

	dirEntries, err := os.ReadDir(directory)
	if err != nil {
		c.scanErrors[directory] = err
		return nil, err
	}

	entries := make(map[string]string, len(dirEntries))
	for _, e := range dirEntries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			// Follow symlinks the same way the host filesystem does when
			// we later open the resolved path; only exclude entries that
			// are not regular files once resolved.
			resolved, err := os.Stat(filepath.Join(directory, e.Name()))
			if err != nil || !resolved.Mode().IsRegular() {
				continue
			}
		} else if !info.Mode().IsRegular() {
			continue
		}
		entries[normalize(e.Name())] = e.Name()
	}
	c.filesInDirs[directory] = entries
	return entries, nil
}
