package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		Account: AccountConfig{
			URI:        "sip:alice@contoso.com",
			Email:      "alice@contoso.com",
			EndpointID: "3f2f6d3e-8a7e-4f5c-9c61-0a4d2b7f9e10",
			HostName:   "desk-01",
		},
		BaseDir:  "/home/user/.local/share/richpres",
		LogDir:   "/home/user/.local/share/richpres/log",
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/richpres/db"},
		Archive:  ArchiveConfig{Type: "s3", Name: "traces", S3Bucket: "presence-traces", S3Region: "eu-west-1"},
		Encryption: EncryptionConfig{
			PublicKeyPath:  "/home/user/.local/share/richpres/keys/richpres.pub",
			PrivateKeyPath: "/home/user/.local/share/richpres/keys/richpres.key",
		},
		Calendar: CalendarConfig{Path: "/home/user/calendar.toml"},
		Publish:  PublishConfig{FreeBusyRefresh: false, Timezone: "00:00:00-05:00"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.Account != original.Account {
		t.Errorf("Account = %+v, want %+v", got.Account, original.Account)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Archive != original.Archive {
		t.Errorf("Archive = %+v, want %+v", got.Archive, original.Archive)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Calendar.Path != original.Calendar.Path {
		t.Errorf("Calendar.Path = %q, want %q", got.Calendar.Path, original.Calendar.Path)
	}
	if got.Publish != original.Publish {
		t.Errorf("Publish = %+v, want %+v", got.Publish, original.Publish)
	}
}

func TestManager_Read_DefaultsFreeBusyRefresh(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader("[account]\nuri = \"sip:bob@contoso.com\"\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !cfg.Publish.FreeBusyRefresh {
		t.Error("Publish.FreeBusyRefresh = false, want true when unset")
	}
	if cfg.Archive.Type != "" {
		t.Errorf("Archive.Type = %q, want archiving disabled", cfg.Archive.Type)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("sip:alice@contoso.com", "ep-1", "/data/richpres")

	if cfg.Account.URI != "sip:alice@contoso.com" || cfg.Account.EndpointID != "ep-1" {
		t.Errorf("Account = %+v", cfg.Account)
	}
	if cfg.BaseDir != "/data/richpres" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/richpres")
	}
	if cfg.LogDir != "/data/richpres/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/richpres/log")
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir != "/data/richpres/db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Encryption.PublicKeyPath != "/data/richpres/keys/richpres.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q", cfg.Encryption.PublicKeyPath)
	}
	if cfg.Encryption.PrivateKeyPath != "/data/richpres/keys/richpres.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q", cfg.Encryption.PrivateKeyPath)
	}
	if !cfg.Publish.FreeBusyRefresh {
		t.Error("Publish.FreeBusyRefresh = false, want true")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "richpres.toml")

		if err := Init(path, NewConfig("sip:a@b.c", "ep", dir)); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "richpres.toml")
		cfg := NewConfig("sip:a@b.c", "ep", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "richpres.toml")
		cfg := NewConfig("sip:read@contoso.com", "ep", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Account.URI != "sip:read@contoso.com" {
			t.Errorf("Account.URI = %q", got.Account.URI)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/richpres.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
