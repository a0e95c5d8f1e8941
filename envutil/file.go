package envutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrUnknownFileType is returned when the file extension is not recognized.
var ErrUnknownFileType = errors.New("env file doesn't have a known file suffix")

// envFile is the shape of JSON and YAML env files: a top-level "env" map.
//
//	env:
//	  RESILIENCE_MAX_RETRIES: "5"
//	  RESILIENCE_MAX_QUARANTINE: 10m
type envFile struct {
	Env map[string]string `json:"env" yaml:"env"`
}

// LoadEnvFile reads variables from a file, picking the parser by extension:
// .env (godotenv syntax), .json or .yml/.yaml (an "env" map). The result is
// usually fed to WithEnvOverrides rather than os.Setenv.
func LoadEnvFile(path string) (map[string]string, error) {
	name := strings.ToLower(filepath.Base(path))

	switch {
	case strings.HasSuffix(name, ".env"):
		return godotenv.Read(path)
	case strings.HasSuffix(name, ".json"):
		return decodeEnvFile(path, json.Unmarshal)
	case strings.HasSuffix(name, ".yml"), strings.HasSuffix(name, ".yaml"):
		return decodeEnvFile(path, yaml.Unmarshal)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFileType, filepath.Base(path))
	}
}

func decodeEnvFile(path string, unmarshal func([]byte, any) error) (map[string]string, error) {
	bts, err := os.ReadFile(path) // #nosec G304 -- path is the intended file to load
	if err != nil {
		return nil, err
	}

	var out envFile
	if err := unmarshal(bts, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	if out.Env == nil {
		return map[string]string{}, nil
	}

	return out.Env, nil
}
