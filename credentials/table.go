package credentials

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrConfig is wrapped by every ConfigError.
var ErrConfig = errors.New("invalid credential configuration")

// ConfigError locates a problem in a credential source.
type ConfigError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	where := e.Path
	if e.Line > 0 {
		where = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", where, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", where, e.Msg)
}

func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfig, e.Err}
	}
	return []error{ErrConfig}
}

// Table maps an advertised device name to its ordered candidates. It is
// never modified after construction and may be shared between goroutines.
type Table struct {
	devices  map[string][]Candidate
	names    []string
	fallback []Candidate
}

// Lookup returns the candidates configured for name and true, or the
// fallback candidates and false when name is not in the table. The match is
// exact. The returned slice must not be modified. A nil table matches nothing.
func (t *Table) Lookup(name string) ([]Candidate, bool) {
	if t == nil {
		return nil, false
	}
	if candidates, ok := t.devices[name]; ok {
		return candidates, true
	}
	return t.fallback, false
}

// WithFallback returns a table sharing t's devices that falls back to
// candidates for unmatched names.
func (t *Table) WithFallback(candidates []Candidate) *Table {
	return &Table{
		devices:  t.devices,
		names:    t.names,
		fallback: append([]Candidate(nil), candidates...),
	}
}

// Names lists the configured device names in document order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Fallback returns the fallback candidates.
func (t *Table) Fallback() []Candidate {
	return t.fallback
}

// Len returns the number of configured devices.
func (t *Table) Len() int {
	return len(t.names)
}

// Loader reads a credential table from a YAML file of the form
//
//	Cam1:
//	  user1: pass1
//	  user2: pass2
//	Lobby:
//	  "": ""        # anonymous
//
// Usernames are tried in the order they are written.
type Loader struct {
	filePath string
}

// NewLoader creates a loader for filePath.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and validates the file.
func (l *Loader) Load() (*Table, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, &ConfigError{Path: l.filePath, Msg: "failed to read credentials file", Err: err}
	}
	return l.parse(data)
}

func (l *Loader) parse(data []byte) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: l.filePath, Msg: "failed to parse credentials yaml", Err: err}
	}

	table := &Table{devices: map[string][]Candidate{}}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return table, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return table, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, l.errorf(root, "top level must map device names to credentials")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, l.errorf(key, "device name must be a string")
		}
		name := key.Value
		if _, dup := table.devices[name]; dup {
			return nil, l.errorf(key, "device %q listed twice", name)
		}
		candidates, err := l.candidates(name, value)
		if err != nil {
			return nil, err
		}
		table.devices[name] = candidates
		table.names = append(table.names, name)
	}
	return table, nil
}

func (l *Loader) candidates(name string, node *yaml.Node) ([]Candidate, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, l.errorf(node, "device %q must map usernames to passwords", name)
	}

	seen := make(map[string]bool, len(node.Content)/2)
	candidates := make([]Candidate, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		user, pass := node.Content[i], node.Content[i+1]
		if user.Kind != yaml.ScalarNode || pass.Kind != yaml.ScalarNode {
			return nil, l.errorf(user, "device %q: username and password must be strings", name)
		}
		if seen[user.Value] {
			return nil, l.errorf(user, "device %q: user %q listed twice", name, user.Value)
		}
		seen[user.Value] = true

		password := pass.Value
		if pass.Tag == "!!null" {
			password = ""
		}
		candidate, err := NewCandidate(user.Value, password)
		if err != nil {
			return nil, &ConfigError{Path: l.filePath, Line: user.Line, Msg: fmt.Sprintf("device %q", name), Err: err}
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func (l *Loader) errorf(node *yaml.Node, format string, args ...any) error {
	return &ConfigError{Path: l.filePath, Line: node.Line, Msg: fmt.Sprintf(format, args...)}
}
