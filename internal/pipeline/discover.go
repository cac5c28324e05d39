package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoInputs is returned when discovery finds no PDF at all.
var ErrNoInputs = errors.New("no invoice PDF file found")

// Discover expands inputs into PDF paths. Directories are scanned for
// *.pdf (any case), recursively when recursive is set; files named in
// exclude are skipped so earlier outputs are not fed back in. Explicit file
// inputs are kept as given. Paths that cannot be read are returned as
// failures rather than aborting discovery.
func Discover(inputs []string, recursive bool, exclude []string) ([]string, []Failure) {
	skip := make(map[string]struct{}, len(exclude))
	for _, n := range exclude {
		skip[strings.ToLower(n)] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	var failures []Failure
	add := func(p string) {
		key := filepath.Clean(p)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}

	for _, root := range inputs {
		info, err := os.Stat(root)
		if err != nil {
			failures = append(failures, Failure{Path: root, Stage: StageDiscover, Err: err})
			continue
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		// WalkDir does not follow a symlinked root, so walk its target and
		// report paths under the name that was given.
		walkRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			failures = append(failures, Failure{Path: root, Stage: StageDiscover, Err: err})
			continue
		}
		var found []string
		err = filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != walkRoot && !recursive {
					return filepath.SkipDir
				}
				return nil
			}
			name := strings.ToLower(d.Name())
			if !strings.HasSuffix(name, ".pdf") || !d.Type().IsRegular() {
				return nil
			}
			if _, ok := skip[name]; ok {
				return nil
			}
			rel, err := filepath.Rel(walkRoot, p)
			if err != nil {
				return err
			}
			found = append(found, filepath.Join(root, rel))
			return nil
		})
		if err != nil {
			failures = append(failures, Failure{Path: root, Stage: StageDiscover, Err: err})
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return out, failures
}
