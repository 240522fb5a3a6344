// Package configutil loads a YAML configuration file into a typed struct,
// the same "unmarshal a file straight into the caller's struct" convention
// the grounding source's own configutil package follows -- minus its
// "extends" file-chaining and validator-tag machinery, neither of which
// this client's single flat Config needs.
package configutil

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads the YAML file at path into dest, which must be a pointer.
func Load(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal config file: %w", err)
	}
	return nil
}
