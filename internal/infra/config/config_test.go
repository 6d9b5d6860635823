package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
	if cfg.Knowledge.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.Knowledge.TopK)
	}
	if cfg.LLM.Generation.AttemptTimeout != 45*time.Second {
		t.Errorf("AttemptTimeout = %v, want 45s", cfg.LLM.Generation.AttemptTimeout)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  providers:
    - name: primary
      type: openai
      model: gpt-4o-mini
      api_key: sk-test
knowledge:
  top_k: 3
  min_score: 0.5
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Knowledge.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.Knowledge.TopK)
	}
	if cfg.Knowledge.MinScore != 0.5 {
		t.Errorf("MinScore = %v, want 0.5", cfg.Knowledge.MinScore)
	}
	if len(cfg.LLM.Providers) != 1 || cfg.LLM.Providers[0].Name != "primary" {
		t.Fatalf("providers = %+v", cfg.LLM.Providers)
	}
	// Untouched sections keep defaults.
	if cfg.Tools.SearchMaxResults != 5 {
		t.Errorf("SearchMaxResults = %d, want 5", cfg.Tools.SearchMaxResults)
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown type", `
llm:
  providers:
    - name: p
      type: carrier-pigeon
      model: m
`},
		{"missing model", `
llm:
  providers:
    - name: p
      type: openai
`},
		{"duplicate name", `
llm:
  providers:
    - name: p
      type: openai
      model: m
    - name: p
      type: anthropic
      model: m2
`},
		{"order references unknown", `
llm:
  providers:
    - name: p
      type: openai
      model: m
  order: [p, q]
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Error("Load succeeded, want validation error")
			}
		})
	}
}

func TestSecretRoundTrip(t *testing.T) {
	enc, err := EncryptValue("sk-very-secret", "passphrase")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	dec, err := DecryptValue(enc, "passphrase")
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if dec != "sk-very-secret" {
		t.Errorf("decrypted = %q", dec)
	}

	if _, err := DecryptValue(enc, "wrong"); err == nil {
		t.Error("DecryptValue with wrong passphrase succeeded")
	}
}

func TestLoadDecryptsProviderKey(t *testing.T) {
	enc, err := EncryptValue("sk-prod", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, `
llm:
  providers:
    - name: primary
      type: openai
      model: gpt-4o-mini
      api_key: enc:`+enc+`
`)
	t.Setenv("VENTUREDESK_CONFIG_KEY", "hunter2")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Providers[0].APIKey != "sk-prod" {
		t.Errorf("api_key = %q, want decrypted value", cfg.LLM.Providers[0].APIKey)
	}
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logger:\n  level: debug\n"), 0o666); err != nil {
		t.Fatal(err)
	}
	// WriteFile's mode is filtered by umask; chmod to get the intended bits.
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load succeeded with world-writable config")
	}
}
