// Package suite loads the list of test commands to execute.
package suite

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TestCase is a declarative definition of one test process.
type TestCase struct {
	// Name identifies the test in reports and archives. Names are unique
	// within a suite.
	Name string `json:"name" yaml:"name"`

	// Run is the command string, interpreted by sh -c.
	Run string `json:"run" yaml:"run"`

	// Env is the complete environment visible to the test. Host variables
	// are not inherited.
	// Optional field.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Combined captures stdout and stderr into a single interleaved stream.
	// Optional field.
	Combined bool `json:"combined,omitempty" yaml:"combined,omitempty"`

	// Timeout bounds the test's wall time; zero uses the configured default.
	// Optional field.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Suite is an ordered list of test cases.
type Suite struct {
	Name  string     `yaml:"name"`
	Tests []TestCase `yaml:"tests"`
}

// Load reads and validates a suite file.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("suite %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a suite document. Unknown fields are rejected.
func Parse(data []byte) (*Suite, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Suite
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("suite is empty")
		}
		return nil, fmt.Errorf("parsing suite: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required fields and name uniqueness.
func (s *Suite) Validate() error {
	if len(s.Tests) == 0 {
		return fmt.Errorf("suite has no tests")
	}
	seen := make(map[string]struct{}, len(s.Tests))
	for i, tc := range s.Tests {
		name := strings.TrimSpace(tc.Name)
		if name == "" {
			return fmt.Errorf("test %d: name is required", i)
		}
		if strings.TrimSpace(tc.Run) == "" {
			return fmt.Errorf("test %q: run is required", name)
		}
		if tc.Timeout < 0 {
			return fmt.Errorf("test %q: timeout must not be negative", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("test %q: duplicate name", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
