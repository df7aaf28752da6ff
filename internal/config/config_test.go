package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "min.yml", "env: dev\n")

	c, err := Load(p, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTP.Addr != ":7001" {
		t.Fatalf("unexpected addr %q", c.HTTP.Addr)
	}
	if c.Auth.Mode != "session" || c.Auth.Token.QueryKey != "token" {
		t.Fatalf("unexpected auth defaults: %+v", c.Auth)
	}
	if c.ERP.Port != 1433 || c.ERP.DefaultProductTable == "" {
		t.Fatalf("unexpected erp defaults: %+v", c.ERP)
	}
	if c.Push.Urgency != "normal" || c.Push.TTL <= 0 {
		t.Fatalf("push defaults not applied: %+v", c.Push)
	}
	if c.WS.PingInterval >= c.WS.PongWait {
		t.Fatalf("ping interval must be below pong wait")
	}
}

func TestLoadLaterFileOverrides(t *testing.T) {
	dir := t.TempDir()
	common := writeFile(t, dir, "common.yml", "http:\n  addr: \":9000\"\nsync:\n  interval: 5m\n")
	svc := writeFile(t, dir, "svc.yml", "http:\n  addr: \":9100\"\n")

	c, err := Load(common+","+svc, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.HTTP.Addr != ":9100" {
		t.Fatalf("later file must win, got %q", c.HTTP.Addr)
	}
	if c.Sync.Interval != 5*time.Minute {
		t.Fatalf("earlier values must survive, got %v", c.Sync.Interval)
	}
}

func TestLoadExpandsEnvFile(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, ".env", "PORTAL_TEST_ERP_PASSWORD=s3cret\n")
	p := writeFile(t, dir, "erp.yml", "erp:\n  password: ${PORTAL_TEST_ERP_PASSWORD}\n")
	t.Cleanup(func() { os.Unsetenv("PORTAL_TEST_ERP_PASSWORD") })

	c, err := Load(p, env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.ERP.Password != "s3cret" {
		t.Fatalf("expected expanded password, got %q", c.ERP.Password)
	}
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "a.yml", "env: prod\n")
	if _, err := Load(p, filepath.Join(dir, "nope.env")); err != nil {
		t.Fatalf("missing env file must be ignored: %v", err)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(" ", ""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
