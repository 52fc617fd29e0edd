// Package prompt loads system-instruction templates from TOML files.
//
// A template looks like:
//
//	system = "You are a card advisor. Answer in {{lang}}."
//	user = "{{input}}"
//
// The system text replaces the configured system prompt for the request
// and the user text, when set, wraps the message typed by the user.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Template represents the structure of a TOML prompt file
type Template struct {
	System string `toml:"system"`
	User   string `toml:"user"`
}

// Rendered is a template with every placeholder replaced.
type Rendered struct {
	System string
	Query  string
}

// Entry is one template found in the prompt directories.
type Entry struct {
	Name string
	Dir  string
}

// Load loads a prompt file and returns its contents
func Load(filePath string) (*Template, error) {
	var t Template
	if _, err := toml.DecodeFile(filePath, &t); err != nil {
		return nil, errors.Wrap(err, "error decoding prompt file")
	}
	return &t, nil
}

// Find returns the path of the template called name. Later directories
// take precedence over earlier ones.
func Find(name string, dirs []string) (string, error) {
	file := name
	if !strings.HasSuffix(file, ".toml") {
		file += ".toml"
	}

	var found string
	for _, dir := range dirs {
		candidate := filepath.Join(dir, file)
		if _, err := os.Stat(candidate); err == nil {
			found = candidate
		}
	}
	if found == "" {
		return "", errors.Errorf("prompt file '%s' not found in any of the prompt directories: %v", file, dirs)
	}
	return found, nil
}

// Render loads the template called name and fills its placeholders with
// message as {{input}} plus the key:value pairs of args.
func Render(name string, dirs []string, message string, args []string) (*Rendered, error) {
	path, err := Find(name, dirs)
	if err != nil {
		return nil, err
	}

	t, err := Load(path)
	if err != nil {
		return nil, err
	}

	argMap, err := processArgs(args)
	if err != nil {
		return nil, errors.Wrap(err, "error processing arguments")
	}

	replacements := map[string]string{"input": message}
	for key, value := range argMap {
		replacements[key] = value
	}

	r := &Rendered{System: t.System, Query: message}
	if t.User != "" {
		r.Query = t.User
	}
	for key, value := range replacements {
		placeholder := fmt.Sprintf("{{%s}}", key)
		r.System = strings.ReplaceAll(r.System, placeholder, value)
		r.Query = strings.ReplaceAll(r.Query, placeholder, value)
	}
	return r, nil
}

// List walks dirs and returns every template name, sorted. A name found
// in several directories is reported once, with the first directory.
func List(dirs []string) ([]Entry, error) {
	seen := make(map[string]bool)
	var entries []Entry

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}

		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".toml") {
				return nil
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return nil
			}
			name := filepath.ToSlash(strings.TrimSuffix(rel, ".toml"))
			if seen[name] {
				return nil
			}
			seen[name] = true
			entries = append(entries, Entry{Name: name, Dir: dir})
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "error walking prompt directory %s", dir)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// processArgs processes the command line arguments and returns a map of key-value pairs
func processArgs(args []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if strings.HasPrefix(arg, `"`) && strings.HasSuffix(arg, `"`) {
			arg = strings.Trim(arg, `"`)
		}

		parts := strings.SplitN(arg, ":", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid argument format: %s. Expected format: key:value", arg)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.ReplaceAll(value, `\:`, ":")
		value = strings.ReplaceAll(value, `\"`, `"`)

		if key == "input" {
			return nil, errors.New("'input' is a reserved keyword and cannot be used as a key")
		}
		result[key] = value
	}
	return result, nil
}
