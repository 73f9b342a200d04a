package utils

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env files into the process environment. Variables that are
// already set win. A missing file is not an error.
func LoadEnv(files ...string) error {
	err := godotenv.Load(files...)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
