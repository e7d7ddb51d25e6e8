package envutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFileType is returned when the file extension is not recognized.
var ErrUnknownFileType = errors.New("env file doesn't have a known file suffix")

// LoadFile reads variables from a file. The format follows the extension:
//   - .env: KEY=VALUE lines, parsed by godotenv
//   - .json: a top-level "env" object of strings
//   - .yml/.yaml: a top-level "env" mapping of strings
//
// The result is usable as a Source.
func LoadFile(path string) (Values, error) {
	name := strings.ToLower(path)

	var (
		vars map[string]string
		err  error
	)

	switch {
	case strings.HasSuffix(name, ".env"):
		vars, err = godotenv.Read(path)
	case strings.HasSuffix(name, ".json"):
		vars, err = loadStructured(path, json.Unmarshal)
	case strings.HasSuffix(name, ".yml"), strings.HasSuffix(name, ".yaml"):
		vars, err = loadStructured(path, yaml.Unmarshal)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFileType, path)
	}

	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	return vars, nil
}

type envFile struct {
	Env map[string]string `json:"env" yaml:"env"`
}

func loadStructured(path string, unmarshal func([]byte, any) error) (map[string]string, error) {
	bts, err := os.ReadFile(path) // #nosec G304 -- path is the intended file to load
	if err != nil {
		return nil, err
	}

	var out envFile
	if err := unmarshal(bts, &out); err != nil {
		return nil, err
	}

	return out.Env, nil
}
