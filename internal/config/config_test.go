package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"BULK_DB_DSN", "DATABASE_URL", "BULK_HTTP_ADDR", "BULK_MAX_BODY_BYTES", "BULK_IMPORT_URL",
		"BULK_IMPORT_TIMEOUT", "BULK_NOTIFY_URL", "BULK_TASK_STORE", "BULK_WORKERS", "BULK_QUEUE_SIZE",
	} {
		t.Setenv(key, "")
	}

	c := Load()
	if c.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", c.HTTPAddr)
	}
	if c.MaxBodyBytes != 4*1024*1024 {
		t.Errorf("MaxBodyBytes = %d", c.MaxBodyBytes)
	}
	if c.ImportTimeout != 5*time.Minute {
		t.Errorf("ImportTimeout = %s", c.ImportTimeout)
	}
	if c.TaskStore != TaskStorePostgres || c.Workers != 2 || c.QueueSize != 64 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BULK_DB_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://db/other")
	t.Setenv("BULK_WORKERS", "8")
	t.Setenv("BULK_IMPORT_TIMEOUT", "90s")
	t.Setenv("BULK_QUEUE_SIZE", "not-a-number")
	t.Setenv("BULK_TASK_STORE", "memory")

	c := Load()
	if c.DBDSN != "postgres://db/other" {
		t.Errorf("DBDSN = %q", c.DBDSN)
	}
	if c.Workers != 8 {
		t.Errorf("Workers = %d", c.Workers)
	}
	if c.ImportTimeout != 90*time.Second {
		t.Errorf("ImportTimeout = %s", c.ImportTimeout)
	}
	if c.QueueSize != 64 {
		t.Errorf("invalid QueueSize should fall back, got %d", c.QueueSize)
	}
	if c.TaskStore != TaskStoreMemory {
		t.Errorf("TaskStore = %q", c.TaskStore)
	}
}

func TestValidate(t *testing.T) {
	c := Config{MaxBodyBytes: 0, Workers: 0, QueueSize: 1, ImportURL: "", TaskStore: "redis"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
