package build

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitegen/internal/siteerr"
)

// loadData reads the site data directory into a map keyed by file stem
// ("data/nav.yaml" becomes .Site.Data.nav). Inline config data is the
// base layer; data files override it on key collision. A malformed
// data file degrades only its own key. A missing directory is fine.
func loadData(dir string, inline map[string]any) (map[string]any, []error) {
	data := make(map[string]any, len(inline))
	for k, v := range inline {
		data[k] = v
	}

	if dir == "" {
		return data, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return data, nil
	}

	var failures []error
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil
		}

		key := dataKeyFor(p)
		raw, err := os.ReadFile(p)
		if err != nil {
			failures = append(failures, siteerr.Wrap(err, siteerr.KindIO, key, "read data file"))
			return nil
		}
		var value any
		// yaml.v3 also accepts JSON documents.
		if err := yaml.Unmarshal(raw, &value); err != nil {
			failures = append(failures, siteerr.Wrap(err, siteerr.KindParse, key, "parse data file"))
			return nil
		}
		data[key] = value
		return nil
	})
	if err != nil {
		failures = append(failures, siteerr.WrapStructural(err, siteerr.KindIO, dir, "walk data directory"))
	}
	return data, failures
}

// dataKeyFor derives the data key from a data file path.
func dataKeyFor(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
