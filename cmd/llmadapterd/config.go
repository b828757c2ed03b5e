package main

import (
	"os"
	"regexp"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// daemonConfig is llmadapterd's process-wide configuration: shared
// infrastructure a Coordinator needs before it can serve any call
// (exchange logging, MCP servers, vector stores), as distinct from the
// per-call LLMCallSpec read from --spec/stdin.
type daemonConfig struct {
	ExchangeLogDir  string `koanf:"exchangeLogDir"`
	DisableFileLogs bool   `koanf:"disableFileLogs"`
	MaxSinkSizeMB   int    `koanf:"maxSinkSizeMB"`
	MaxSinkBackups  int    `koanf:"maxSinkBackups"`
	LogLevel        string `koanf:"logLevel"`

	MCPServers []mcpServerConfig `koanf:"mcpServers"`
	Vector     vectorConfig      `koanf:"vector"`
}

type mcpServerConfig struct {
	ID      string   `koanf:"id"`
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	Env     []string `koanf:"env"`
}

type vectorConfig struct {
	QdrantURL    string `koanf:"qdrantUrl"`
	QdrantAPIKey string `koanf:"qdrantApiKey"`
	EmbedModel   string `koanf:"embedModel"`
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// resolveEnvString replaces ${VAR} occurrences with the named
// environment variable, leaving the match untouched when unset.
func resolveEnvString(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return match
	})
}

var (
	loadOnce sync.Once
	loaded   *daemonConfig
	loadErr  error
)

// loadConfig reads path (if non-empty and present) layered under
// LLM_ADAPTERD_ env var overrides, applying ${VAR} interpolation to
// every MCP server's command/args and the vector store's API key.
// Grounded on LizzyG-llmrouter's internal/config/loader.go: koanf file
// + env providers feeding one Unmarshal, wrapped in a sync.Once
// singleton so every subcommand's PersistentPreRunE can call it freely.
func loadConfig(path string) (*daemonConfig, error) {
	loadOnce.Do(func() {
		k := koanf.New(".")

		if path != "" {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(kfile.Provider(path), yaml.Parser()); err != nil {
					loadErr = err
					return
				}
			}
		}

		if err := k.Load(kenv.Provider("LLM_ADAPTERD_", ".", envTransform), nil); err != nil {
			loadErr = err
			return
		}

		cfg := daemonConfig{MaxSinkSizeMB: 10, MaxSinkBackups: 5, LogLevel: "info"}
		if err := k.Unmarshal("", &cfg); err != nil {
			loadErr = err
			return
		}

		for i := range cfg.MCPServers {
			cfg.MCPServers[i].Command = resolveEnvString(cfg.MCPServers[i].Command)
			for j, a := range cfg.MCPServers[i].Args {
				cfg.MCPServers[i].Args[j] = resolveEnvString(a)
			}
		}
		cfg.Vector.QdrantAPIKey = resolveEnvString(cfg.Vector.QdrantAPIKey)

		loaded = &cfg
	})
	return loaded, loadErr
}

// envTransform strips the LLM_ADAPTERD_ prefix, lowercases the
// remainder and turns each '_' into koanf's '.' nesting delimiter, so
// LLM_ADAPTERD_VECTOR_QDRANTURL maps to "vector.qdranturl". The struct
// tags above are matched case-insensitively by koanf.Unmarshal, so a
// multi-word top-level key is written without separators:
// LLM_ADAPTERD_EXCHANGELOGDIR maps to "exchangelogdir".
func envTransform(s string) string {
	return toLowerTrim(s, "LLM_ADAPTERD_")
}

func toLowerTrim(s, prefix string) string {
	trimmed := s
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		trimmed = s[len(prefix):]
	}
	out := make([]byte, len(trimmed))
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == '_' {
			c = '.'
		}
		out[i] = c
	}
	return string(out)
}
