package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Environment names the closed set of deployment contexts the supervisor
// knows. Each maps to its own .env.<name> configuration source.
type Environment string

const (
	Local       Environment = "local"
	Development Environment = "development"
	Testing     Environment = "testing"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

var ErrUnknownEnvironment = errors.New("unknown environment")

// Environments returns the valid environment names in display order.
func Environments() []Environment {
	return []Environment{Local, Development, Testing, Staging, Production}
}

// ParseEnvironment validates an operator-supplied environment name. The
// error lists the valid set so the CLI can print it verbatim.
func ParseEnvironment(s string) (Environment, error) {
	e := Environment(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Environments() {
		if e == valid {
			return e, nil
		}
	}
	names := make([]string, 0, 5)
	for _, v := range Environments() {
		names = append(names, string(v))
	}
	return "", fmt.Errorf("%w: %q (valid environments: %s)",
		ErrUnknownEnvironment, s, strings.Join(names, ", "))
}

// EnvFile returns the env-file path for an environment under dir.
func EnvFile(dir string, env Environment) string {
	return filepath.Join(dir, ".env."+string(env))
}

// Settings is everything the orchestrator needs from the environment
// selection: the loaded variables plus derived paths and endpoints.
type Settings struct {
	Environment Environment
	Vars        map[string]string

	ControlDir string // pid markers + default history db
	LogDir     string // per-service append-only logs
	ConsulAddr string
	HistoryDSN string
}

// Load reads the env file for the selected environment. A missing file is a
// fatal configuration error: every environment in the closed set must have
// its configuration source present before any process action happens.
func Load(env Environment, envDir string) (*Settings, error) {
	path := EnvFile(envDir, env)
	vars, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config: missing env file %s for environment %q", path, env)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	s := &Settings{Environment: env, Vars: vars}
	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyDefaults() {
	get := func(key, def string) string {
		if v, ok := s.Vars[key]; ok && strings.TrimSpace(v) != "" {
			return v
		}
		return def
	}
	s.ControlDir = get("FLEET_CONTROL_DIR", filepath.Join(".fleet", "pids"))
	s.LogDir = get("FLEET_LOG_DIR", filepath.Join(".fleet", "logs"))
	consulHost := get("CONSUL_HOST", "127.0.0.1")
	consulPort := get("CONSUL_PORT", "8500")
	s.ConsulAddr = "http://" + consulHost + ":" + consulPort
	s.HistoryDSN = get("FLEET_HISTORY_DSN", filepath.Join(filepath.Dir(s.ControlDir), "history.db"))
}

// MergedEnv composes the environment for spawned services: OS environment
// as the base, env-file variables overriding, with simple ${VAR} expansion
// across the composed map.
func (s *Settings) MergedEnv() []string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range s.Vars {
		if k == "" {
			continue
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
