package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// LoadFromEnv loads the process environment layered over the optional dotenv file at path.
// Process variables win over the file.
func LoadFromEnv(path string) (Config, error) {
	file, err := ReadDotEnv(path)
	if err != nil {
		return Config{}, err
	}
	return Load(Layered{FromEnviron(), file})
}

// ReadDotEnv parses a dotenv file without touching the process environment. A missing file
// yields an empty source.
func ReadDotEnv(path string) (EnvMap, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return EnvMap{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return EnvMap{}, nil
		}
		return nil, fmt.Errorf("%w: stat %s: %w", ErrInvalidConfig, path, err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
	}
	return EnvMap(values), nil
}
