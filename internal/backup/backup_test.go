package backup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dxia/starshipplan/internal/config"
	"github.com/dxia/starshipplan/internal/database"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerStateLifecycle(t *testing.T) {
	// Without S3 config -> disabled
	m := NewManager(config.BackupConfig{}, "", nil, discard())
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if m.Enabled() {
		t.Error("expected disabled manager")
	}

	// With S3 config -> idle
	m2 := NewManager(config.BackupConfig{Bucket: "test", AccessKey: "key", SecretKey: "secret"}, "", nil, discard())
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}
	if !m2.Enabled() {
		t.Error("expected enabled manager")
	}
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(config.BackupConfig{}, "", nil, discard())

	m.Start(context.Background()) // no-op when disabled

	// Stop should not block
	m.Stop()
}

func TestManagerStopSafety(t *testing.T) {
	m := NewManager(config.BackupConfig{
		Bucket: "test", AccessKey: "key", SecretKey: "secret",
		Interval: time.Hour,
	}, "", nil, discard())

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestRunNowUploadsSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "starshipplan.db")
	db, err := database.Open(dbPath)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(config.BackupConfig{
		Bucket: "test", AccessKey: "key", SecretKey: "secret",
	}, dbPath, db, discard())

	mock := newMockS3()
	m.client = mock

	key, err := m.RunNow(context.Background())
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if !strings.HasPrefix(key, "snapshots/starshipplan-") {
		t.Errorf("key = %q, want snapshots/starshipplan- prefix", key)
	}

	mock.mu.Lock()
	data, ok := mock.objects[key]
	mock.mu.Unlock()
	if !ok {
		t.Fatal("expected uploaded object")
	}
	if len(data) == 0 {
		t.Error("uploaded snapshot is empty")
	}
	// SQLite files begin with a fixed magic header.
	if !strings.HasPrefix(string(data), "SQLite format 3") {
		t.Error("uploaded object is not a SQLite database")
	}

	st := m.Status()
	if st.State != StateIdle {
		t.Errorf("state = %q, want %q", st.State, StateIdle)
	}
	if st.LastBackup == nil {
		t.Error("expected LastBackup to be set")
	}
	if st.LastKey != key {
		t.Errorf("LastKey = %q, want %q", st.LastKey, key)
	}
}

func TestRunNowNotConfigured(t *testing.T) {
	m := NewManager(config.BackupConfig{}, "", nil, discard())
	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured manager")
	}
}
