package db

import (
	"strings"
	"testing"

	"github.com/ctfleet/instancer/internal/models"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		host     string
		port     int
		database string
		want     string
	}{
		{
			name:     "default local",
			user:     "root",
			host:     "127.0.0.1",
			port:     3306,
			database: "instancer",
			want:     "root@tcp(127.0.0.1:3306)/instancer?parseTime=true",
		},
		{
			name:     "with password",
			user:     "ctf",
			password: "hunter2",
			host:     "db.vpc.internal",
			port:     3307,
			database: "instancer",
			want:     "ctf:hunter2@tcp(db.vpc.internal:3307)/instancer?parseTime=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.password, tt.host, tt.port, tt.database)
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSN_ParseTimeFlag(t *testing.T) {
	dsn := DSN("root", "", "localhost", 3306, "test")
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func TestConnectSQLite_Memory(t *testing.T) {
	gdb, err := ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("ConnectSQLite: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	// Round-trip one row per table to confirm the schema is usable.
	chal := models.Challenge{Name: "pwn-1", Image: "ctf/pwn1:latest", InternalPort: 9999}
	if err := gdb.Create(&chal).Error; err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	inst := models.Instance{ID: "abc123", ChallengeID: chal.ID, UserID: 1, Port: 40000}
	if err := gdb.Create(&inst).Error; err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if err := gdb.Create(&models.Setting{Key: "host_label", Value: "ctf.example.org"}).Error; err != nil {
		t.Fatalf("create setting: %v", err)
	}

	var got models.Instance
	if err := gdb.First(&got, "id = ?", "abc123").Error; err != nil {
		t.Fatalf("load instance: %v", err)
	}
	if got.ChallengeID != chal.ID || got.Port != 40000 {
		t.Errorf("loaded instance = %+v", got)
	}
}
