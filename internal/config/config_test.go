package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		path := writeConfig(t, `
database:
  driver: sqlite
auth:
  jwt_secret: s3cret
`)
		cfg, err := Load(path, false)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Workflow.CallTimeout != 5*time.Minute || cfg.Workflow.MaxParallelSteps != 1 {
			t.Errorf("workflow defaults: %+v", cfg.Workflow)
		}
		if cfg.Search.MaxResults != 5 || cfg.Search.Provider != "tavily" {
			t.Errorf("search defaults: %+v", cfg.Search)
		}
		if cfg.AI.MaxRetries != 0 || cfg.AI.ConcurrentLimit != 16 {
			t.Errorf("ai defaults: %+v", cfg.AI)
		}
		if cfg.Worker.LeaseTTL != 2*time.Minute || cfg.Worker.ID == "" || cfg.Worker.MaxAttempts != 5 {
			t.Errorf("worker defaults: %+v", cfg.Worker)
		}
	})

	t.Run("should parse durations and lists", func(t *testing.T) {
		path := writeConfig(t, `
database:
  driver: memory
auth:
  jwt_secret: s3cret
workflow:
  call_timeout: 90s
  max_parallel_steps: 3
notify:
  telegram:
    chat_ids: [1, 2]
`)
		cfg, err := Load(path, false)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Workflow.CallTimeout != 90*time.Second || cfg.Workflow.MaxParallelSteps != 3 {
			t.Errorf("workflow: %+v", cfg.Workflow)
		}
		if len(cfg.Notify.Telegram.ChatIDs) != 2 {
			t.Errorf("chat ids: %v", cfg.Notify.Telegram.ChatIDs)
		}
	})

	t.Run("should override secrets from the environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env")
		t.Setenv("JWT_SECRET", "from-env")
		t.Setenv("TAVILY_API_KEY", "tvly")
		cfg, err := Load(writeConfig(t, "database:\n  url: postgres://file\n"), false)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Database.URL != "postgres://env" || cfg.Auth.JWTSecret != "from-env" || cfg.SearchKey() != "tvly" {
			t.Errorf("env not applied: %+v", cfg)
		}
	})

	t.Run("should reject invalid settings", func(t *testing.T) {
		cases := map[string]string{
			"postgres without url": "auth:\n  jwt_secret: x\n",
			"missing secret":       "database:\n  driver: memory\n",
			"unknown driver":       "auth:\n  jwt_secret: x\ndatabase:\n  driver: mongo\n",
			"unknown search":       "auth:\n  jwt_secret: x\ndatabase:\n  driver: memory\nsearch:\n  provider: bing\n",
			"unknown ai provider":  "auth:\n  jwt_secret: x\ndatabase:\n  driver: memory\nai:\n  provider: llama\n",
		}
		for name, body := range cases {
			if _, err := Load(writeConfig(t, body), false); err == nil {
				t.Errorf("%s: expected an error", name)
			}
		}
	})

	t.Run("should default the model per provider", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "database:\n  driver: memory\nauth:\n  jwt_secret: x\nai:\n  provider: gemini\n"), false)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.AI.DefaultModel != "gemini-2.5-flash" {
			t.Errorf("model = %q", cfg.AI.DefaultModel)
		}
	})

	t.Run("should build a local config without a file", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-local")
		cfg := Local()
		if cfg.Database.Driver != "memory" || !cfg.Runtime.Dev || cfg.AI.AnthropicKey != "sk-local" {
			t.Errorf("local config: %+v", cfg)
		}
	})

	t.Run("should allow a missing file only in dev", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		missing := filepath.Join(t.TempDir(), "nope.yaml")
		if _, err := Load(missing, false); err == nil || !strings.Contains(err.Error(), "read config") {
			t.Errorf("expected read error, got %v", err)
		}
		if _, err := Load(missing, true); err == nil {
			t.Error("dev still needs a database url for postgres")
		}
		t.Setenv("DATABASE_URL", "postgres://dev")
		cfg, err := Load(missing, true)
		if err != nil || !cfg.Runtime.Dev {
			t.Errorf("dev load: %v", err)
		}
	})
}
