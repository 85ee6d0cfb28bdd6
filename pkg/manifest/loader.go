package manifest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/sre-norns/skuld/pkg/skuld"
)

// ReadManifests decodes all documents out of a single YAML stream.
func ReadManifests(r io.Reader) ([]ResourceManifest, error) {
	var result []ResourceManifest

	decoder := yaml.NewDecoder(r)
	for {
		var m ResourceManifest
		if err := decoder.Decode(&m); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		result = append(result, m)
	}

	return result, nil
}

// LoadFile reads every scenario out of one manifest file. The relative
// path given is baked into scenario identity, so callers should pass
// the same form of the path on every run.
func LoadFile(path string) ([]*skuld.Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest file: %w", err)
	}
	defer file.Close()

	manifests, err := ReadManifests(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}

	var result []*skuld.Scenario
	for _, m := range manifests {
		scenarios, err := BuildScenarios(m, filepath.ToSlash(path))
		if err != nil {
			return nil, fmt.Errorf("failed to load %q: %w", path, err)
		}

		result = append(result, scenarios...)
	}

	return result, nil
}

// LoadPath loads scenarios from a file, or from every .yaml/.yml file
// under a directory. Directory walks visit files in lexical path order
// so scenario discovery order is stable across runs.
func LoadPath(root string) ([]*skuld.Scenario, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return LoadFile(root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	var result []*skuld.Scenario
	for _, file := range files {
		scenarios, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		result = append(result, scenarios...)
	}

	return result, nil
}
