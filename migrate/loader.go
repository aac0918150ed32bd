/*
Copyright © 2026 Acronis International GmbH.

Released under MIT license.
*/

package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// LoadScripts reads the scripts with the given extension (e.g. ".sql" or "sql") from dir of fsys.
// Subdirectories and files with other extensions are skipped.
// The result is sorted by version.
//
// A missing dir, or a dir that is not a directory, gives an error with ErrorCodeNoDir.
// A script without a version in its name gives an error with ErrorCodeFilename.
// An empty directory is not an error here, the result is just empty.
func LoadScripts(fsys fs.FS, dir, ext string) ([]Script, error) {
	ext = normalizeExtension(ext)
	info, err := fs.Stat(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(ErrorCodeNoDir, dir, nil)
		}
		return nil, newError(ErrorCodeNoDir, dir, err)
	}
	if !info.IsDir() {
		return nil, newError(ErrorCodeNoDir, dir, nil)
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	scripts := make([]Script, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		content, readErr := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if readErr != nil {
			return nil, fmt.Errorf("read migration script %s: %w", entry.Name(), readErr)
		}
		script, scriptErr := NewScript(entry.Name(), content)
		if scriptErr != nil {
			return nil, scriptErr
		}
		scripts = append(scripts, script)
	}

	sort.SliceStable(scripts, func(i, j int) bool {
		return scripts[i].Version < scripts[j].Version
	})
	return scripts, nil
}

func normalizeExtension(ext string) string {
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}
