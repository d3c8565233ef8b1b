package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus/membus"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sequencer/internal/pv"
	"github.com/nerrad567/gray-logic-sequencer/internal/script"
)

// writeConfig writes a config file and points GRAYLOGIC_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config error", err)
	}
}

func TestRun_InvalidVariable(t *testing.T) {
	writeConfig(t, `
site:
  id: test-site
events:
  bus: memory
sequencer:
  variables:
    - name: broken
      event_key: esw.test.temp
      param: value
      type: int
      initial: "not-a-number"
logging:
  level: error
  output: stderr
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "creating variable broken") {
		t.Fatalf("run() error = %v, want variable creation error", err)
	}
}

// TestRun_MemoryBusStartupAndShutdown runs the whole binary on the
// in-process bus with history and metrics enabled.
func TestRun_MemoryBusStartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sequencer.db")
	writeConfig(t, `
site:
  id: test-site
events:
  bus: memory
  ready_timeout: 2s
sequencer:
  poll_failure_policy: stop
  variables:
    - name: room_temp
      event_key: esw.test.temp
      param: value
      type: double
      initial: "20.5"
    - name: mode
      event_key: esw.test.mode
      param: mode
      type: string
      poll_interval: 50ms
database:
  enabled: true
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
  retention: 24h
metrics:
  enabled: true
logging:
  level: error
  format: text
  output: stderr
`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("querying schema_migrations: %v", err)
	}
	if n == 0 {
		t.Error("migrations were not applied")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("GRAYLOGIC_CONFIG", "/etc/graylogic/sequencer.yaml")
	if got := getConfigPath(); got != "/etc/graylogic/sequencer.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}

func TestHealthCheck_NoServices(t *testing.T) {
	if err := healthCheck(context.Background(), nil, nil, nil); err != nil {
		t.Errorf("healthCheck() with no services error = %v", err)
	}
}

func TestNewVariable(t *testing.T) {
	sc := script.New(membus.New(), pv.Options{})
	t.Cleanup(func() { _ = sc.Close(context.Background()) })
	ctx := context.Background()

	tests := []struct {
		vc      config.VariableConfig
		want    string
		wantErr bool
	}{
		{vc: config.VariableConfig{Type: "int", Initial: "42"}, want: "42"},
		{vc: config.VariableConfig{Type: "long", Initial: "9000000000"}, want: "9000000000"},
		{vc: config.VariableConfig{Type: "double", Initial: "21.5"}, want: "21.5"},
		{vc: config.VariableConfig{Type: "string", Initial: "auto"}, want: "auto"},
		{vc: config.VariableConfig{Type: "boolean", Initial: "true"}, want: "true"},
		{vc: config.VariableConfig{Type: "int"}, want: "0"},
		{vc: config.VariableConfig{Type: "int", Initial: "x"}, wantErr: true},
		{vc: config.VariableConfig{Type: "int", Initial: "2147483647"}, want: "2147483647"},
		{vc: config.VariableConfig{Type: "int", Initial: "-2147483648"}, want: "-2147483648"},
		{vc: config.VariableConfig{Type: "int", Initial: "2147483648"}, wantErr: true},
		{vc: config.VariableConfig{Type: "int", Initial: "3000000000"}, wantErr: true},
		{vc: config.VariableConfig{Type: "boolean", Initial: "maybe"}, wantErr: true},
		{vc: config.VariableConfig{Type: "matrix"}, wantErr: true},
	}

	for i, tt := range tests {
		t.Run(tt.vc.Type+"/"+tt.vc.Initial, func(t *testing.T) {
			tt.vc.Name = "v"
			tt.vc.Param = "value"
			tt.vc.EventKey = "esw.test.v" + string(rune('a'+i))

			v, err := newVariable(ctx, sc, tt.vc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("newVariable() expected error")
				}
				if v != nil {
					t.Error("newVariable() returned a variable on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newVariable() error = %v", err)
			}
			p, ok := v.Latest().Params.Find("value")
			if !ok {
				t.Fatal("initial value missing from cached event")
			}
			if got := fmt.Sprint(p.First()); got != tt.want {
				t.Errorf("initial = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChangeLoggerNeverFails(t *testing.T) {
	sc := script.New(membus.New(), pv.Options{})
	t.Cleanup(func() { _ = sc.Close(context.Background()) })

	vc := config.VariableConfig{Name: "t", EventKey: "esw.test.temp", Param: "value", Type: "int", Initial: "1"}
	v, err := newVariable(context.Background(), sc, vc)
	if err != nil {
		t.Fatalf("newVariable() error = %v", err)
	}

	dep := changeLogger(logging.Discard(), vc, v)
	if err := dep(context.Background(), "esw.test.temp"); err != nil {
		t.Errorf("change logger error = %v", err)
	}
}
