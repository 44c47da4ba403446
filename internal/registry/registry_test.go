package registry

import (
	"context"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/vigil/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// Each pooled connection gets its own :memory: database; pin the pool to
	// one connection so the heartbeat goroutine and the test share state.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Instance{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestRegister_EmptyName(t *testing.T) {
	r := New(openTestDB(t))
	if err := r.Register("", "host"); err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("Register = %v", err)
	}
}

func TestRegisterAndListLive(t *testing.T) {
	r := New(openTestDB(t))

	if err := r.Register("inst1", "myapp.example.net"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("inst0", "myapp.example.net"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	names, err := r.ListLive(context.Background())
	if err != nil {
		t.Fatalf("ListLive: %v", err)
	}
	if len(names) != 2 || names[0] != "inst0" || names[1] != "inst1" {
		t.Errorf("ListLive = %v, want sorted [inst0 inst1]", names)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	db := openTestDB(t)
	r := New(db)

	if err := r.Register("inst0", "hostA"); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("inst0", "hostB"); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	var count int64
	db.Model(&models.Instance{}).Count(&count)
	if count != 1 {
		t.Errorf("instance rows = %d, want 1", count)
	}
	var inst models.Instance
	db.First(&inst, "name = ?", "inst0")
	if inst.HostName != "hostB" {
		t.Errorf("HostName = %q, want refreshed value", inst.HostName)
	}
}

func TestListLive_ExcludesStale(t *testing.T) {
	db := openTestDB(t)
	r := New(db)
	r.Window = 50 * time.Millisecond

	if err := r.Register("fresh", "host"); err != nil {
		t.Fatal(err)
	}
	stale := models.Instance{
		Name:          "stale",
		StartedAt:     time.Now().Add(-time.Hour),
		LastHeartbeat: time.Now().Add(-time.Hour),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatal(err)
	}

	names, err := r.ListLive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "fresh" {
		t.Errorf("ListLive = %v, want only fresh", names)
	}
}

func TestPruneStale(t *testing.T) {
	db := openTestDB(t)
	r := New(db)
	r.Window = 50 * time.Millisecond

	if err := r.Register("fresh", "host"); err != nil {
		t.Fatal(err)
	}
	stale := models.Instance{
		Name:          "stale",
		LastHeartbeat: time.Now().Add(-time.Hour),
	}
	if err := db.Create(&stale).Error; err != nil {
		t.Fatal(err)
	}

	pruned, err := r.PruneStale()
	if err != nil {
		t.Fatalf("PruneStale: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	var count int64
	db.Model(&models.Instance{}).Count(&count)
	if count != 1 {
		t.Errorf("rows remaining = %d, want 1", count)
	}
}

func TestStartHeartbeat_RefreshesRow(t *testing.T) {
	db := openTestDB(t)
	r := New(db)

	if err := r.Register("inst0", "host"); err != nil {
		t.Fatal(err)
	}
	var before models.Instance
	db.First(&before, "name = ?", "inst0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := r.StartHeartbeat(ctx, "inst0", 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-errCh:
		t.Fatalf("heartbeat error: %v", err)
	default:
	}

	var after models.Instance
	db.First(&after, "name = ?", "inst0")
	if !after.LastHeartbeat.After(before.LastHeartbeat) {
		t.Error("heartbeat not refreshed")
	}
}

func TestStartHeartbeat_MissingInstance(t *testing.T) {
	r := New(openTestDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := r.StartHeartbeat(ctx, "ghost", 5*time.Millisecond)

	select {
	case err := <-errCh:
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected heartbeat error for missing instance")
	}
}
