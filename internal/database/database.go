package database

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// NewDB opens the database/sql handle used by the stores. An empty url is
// resolved with ResolveURL.
func NewDB(ctx context.Context, url string, maxConns int) (*sql.DB, error) {
	dbURL, err := ResolveURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

// NewPool opens the pgx pool the job queue runs on. An empty url is resolved
// with ResolveURL.
func NewPool(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	dbURL, err := ResolveURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping pgx pool: %w", err)
	}
	return pool, nil
}

// urlKeys are checked in order in the environment and then in .env
var urlKeys = []string{"GUESTDESK_DATABASE_URL", "DATABASE_URL"}

// ResolveURL returns url, or the first of urlKeys set in the environment or in
// the nearest .env at or above the working directory
func ResolveURL(url string) (string, error) {
	if url = strings.TrimSpace(url); url != "" {
		return url, nil
	}
	return loadDatabaseURL()
}

func loadDatabaseURL() (string, error) {
	for _, key := range urlKeys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, nil
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	envPath, err := findEnvFile(wd)
	if err != nil {
		return "", fmt.Errorf("database url not configured: %w", err)
	}

	vars, err := readEnvFile(envPath)
	if err != nil {
		return "", err
	}
	for _, key := range urlKeys {
		if v, ok := vars[key]; ok {
			if v == "" {
				return "", fmt.Errorf("%s is empty in %s", key, envPath)
			}
			return v, nil
		}
	}
	return "", fmt.Errorf("database url not configured: none of %s in environment or %s", strings.Join(urlKeys, ", "), envPath)
}

// readEnvFile parses KEY=VALUE lines, allowing comments, blank lines, an
// export prefix and single or double quotes around the value
func readEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && (value[0] == '"' || value[0] == '\'') && value[len(value)-1] == value[0] {
			value = value[1 : len(value)-1]
		}
		vars[strings.TrimSpace(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}

func findEnvFile(start string) (string, error) {
	for dir := start; ; {
		candidate := filepath.Join(dir, ".env")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no .env at or above %s", start)
		}
		dir = parent
	}
}
