package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
listen:
  port: 9090

db:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  user: ctf
  password: hunter2
  database: instancer

team_mode: true

quota:
  max_per_user: 2
`

const minimalYAML = `
db:
  driver: sqlite
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Listen.Port != 9090 {
		t.Errorf("Listen.Port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.DB.Driver != "mysql" {
		t.Errorf("DB.Driver = %q, want mysql", cfg.DB.Driver)
	}
	if cfg.DB.Host != "10.0.0.5" || cfg.DB.Port != 3307 {
		t.Errorf("DB host/port = %s:%d, want 10.0.0.5:3307", cfg.DB.Host, cfg.DB.Port)
	}
	if cfg.DB.User != "ctf" || cfg.DB.Password != "hunter2" {
		t.Errorf("DB credentials = %s/%s", cfg.DB.User, cfg.DB.Password)
	}
	if !cfg.TeamMode {
		t.Error("TeamMode = false, want true")
	}
	if cfg.Quota.MaxPerUser != 2 {
		t.Errorf("Quota.MaxPerUser = %d, want 2", cfg.Quota.MaxPerUser)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Listen.Port != 8080 {
		t.Errorf("Listen.Port = %d, want default 8080", cfg.Listen.Port)
	}
	if cfg.DB.Path != "instancer.db" {
		t.Errorf("DB.Path = %q, want default instancer.db", cfg.DB.Path)
	}
	if cfg.TeamMode {
		t.Error("TeamMode = true, want default false")
	}
	if cfg.Quota.MaxPerUser != 1 {
		t.Errorf("Quota.MaxPerUser = %d, want default 1", cfg.Quota.MaxPerUser)
	}
}

func TestParse_EmptyDriverDefaultsToSQLite(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DB.Driver != "sqlite" {
		t.Errorf("DB.Driver = %q, want sqlite", cfg.DB.Driver)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("db:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.DB.Host != "127.0.0.1" || cfg.DB.Port != 3306 {
		t.Errorf("DB host/port = %s:%d, want 127.0.0.1:3306", cfg.DB.Host, cfg.DB.Port)
	}
	if cfg.DB.User != "root" || cfg.DB.Database != "instancer" {
		t.Errorf("DB user/database = %s/%s", cfg.DB.User, cfg.DB.Database)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad driver",
			yaml:    "db:\n  driver: postgres\n",
			wantErr: "db.driver",
		},
		{
			name:    "bad port",
			yaml:    "listen:\n  port: 700000\n",
			wantErr: "listen.port",
		},
		{
			name:    "negative quota",
			yaml:    "quota:\n  max_per_user: -1\n",
			wantErr: "max_per_user",
		},
		{
			name:    "malformed yaml",
			yaml:    "db: [unclosed",
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse: expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instancer.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Database != "instancer" {
		t.Errorf("DB.Database = %q, want instancer", cfg.DB.Database)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load: expected error for missing file")
	}
}
