package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

type Config struct {
	HTTPAddr   string
	DataDir    string
	DBPath     string
	Backend    string
	CORSOrigin string

	UserToken  string
	AdminToken string
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("ADVENTD_DATA_DIR", "data")
	return Config{
		HTTPAddr:   getEnv("ADVENTD_HTTP_ADDR", ":8000"),
		DataDir:    dataDir,
		DBPath:     getEnv("ADVENTD_DB_PATH", filepath.Join(dataDir, "adventd.db")),
		Backend:    getEnv("ADVENTD_BACKEND", BackendSQLite),
		CORSOrigin: getEnv("ADVENTD_CORS_ORIGIN", "http://localhost:3000"),

		UserToken:  getEnv("USER_TOKEN", "SwexCamp2024!"),
		AdminToken: getEnv("ADMIN_TOKEN", "SwexCamp2024Admin!"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
