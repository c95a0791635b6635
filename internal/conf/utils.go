package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/leafnet/leafnet-go/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// If config.yaml exists in one of them, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			filepath.Join(homeDir, "AppData", "Roaming", "leafnet"),
			".",
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "leafnet"),
			"/etc/leafnet",
			".",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// MySQLDSN builds a go-sql-driver DSN from the MySQL settings.
func (m *MySQLSettings) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// ScratchDirectory returns the configured scratch dir or the system temp dir.
func (p *PipelineSettings) ScratchDirectory() string {
	if p.ScratchDir == "" {
		return os.TempDir()
	}
	return p.ScratchDir
}
