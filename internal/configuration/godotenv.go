package configuration

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

// GodotenvProvider reads env-style files from a file system through the
// godotenv parser.
type GodotenvProvider struct {
	FS afero.Fs
}

// Read reads env-style configuration files into a map (map[key]value).
// Keys of later files override those of earlier ones.
func (p *GodotenvProvider) Read(filenames ...string) (map[string]string, error) {
	envMap := make(map[string]string)

	for _, name := range filenames {
		f, err := p.FS.Open(name)
		if err != nil {
			return envMap, fmt.Errorf("(config-godotenv) %w", err)
		}

		values, err := godotenv.Parse(f)
		_ = f.Close()

		if err != nil {
			return envMap, fmt.Errorf("(config-godotenv) %s: %w", name, err)
		}

		for key, value := range values {
			envMap[key] = value
		}
	}

	return envMap, nil
}
