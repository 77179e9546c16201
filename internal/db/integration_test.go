//go:build integration

package db

import (
	"fmt"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/zulandar/lectern/internal/config"
	"github.com/zulandar/lectern/internal/models"
	"github.com/zulandar/lectern/internal/searchindex"
)

// testDoltServer manages a Dolt SQL server lifecycle for integration tests.
type testDoltServer struct {
	Port int
	Dir  string
	cmd  *exec.Cmd
}

// startDoltServer initializes a Dolt repo in a temp directory and starts
// dolt sql-server on a free port. The server is automatically stopped
// when the test completes.
func startDoltServer(t *testing.T) *testDoltServer {
	t.Helper()

	dir := t.TempDir()

	// Configure dolt identity for the temp repo
	for _, kv := range [][2]string{
		{"user.name", "Test Runner"},
		{"user.email", "test@lectern.dev"},
	} {
		cfg := exec.Command("dolt", "config", "--global", "--add", kv[0], kv[1])
		cfg.Dir = dir
		cfg.CombinedOutput() // ignore errors if already set
	}

	// Initialize dolt repo
	init := exec.Command("dolt", "init")
	init.Dir = dir
	if out, err := init.CombinedOutput(); err != nil {
		t.Fatalf("dolt init: %s\n%s", err, out)
	}

	port := freePort(t)

	cmd := exec.Command("dolt", "sql-server",
		"--port", fmt.Sprintf("%d", port),
		"--host", "127.0.0.1",
	)
	cmd.Dir = dir

	if err := cmd.Start(); err != nil {
		t.Fatalf("dolt sql-server start: %v", err)
	}

	srv := &testDoltServer{Port: port, Dir: dir, cmd: cmd}

	t.Cleanup(func() {
		srv.cmd.Process.Kill()
		srv.cmd.Wait()
	})

	waitForServer(t, port)
	return srv
}

// freePort finds an available TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// waitForServer polls until the Dolt server accepts TCP connections.
func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("dolt sql-server not ready on port %d after 10s", port)
}

func TestIntegration_Init(t *testing.T) {
	srv := startDoltServer(t)
	cfg := config.DatabaseConfig{Driver: "mysql", User: "root", Host: "127.0.0.1", Port: srv.Port, Name: "lectern_init"}

	db, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close(db)

	var tables []string
	if err := db.Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
		t.Fatalf("SHOW TABLES: %v", err)
	}
	tableSet := make(map[string]bool)
	for _, tbl := range tables {
		tableSet[tbl] = true
	}
	for _, want := range []string{"channels", "videos", "transcripts", "knowledge_entries", "bias_flags",
		"optimization_queue", "optimization_log", "processing_log", "knowledge_fts", "video_fts", "transcript_fts"} {
		if !tableSet[want] {
			t.Errorf("missing table %s (have %v)", want, tables)
		}
	}

	// Init is safe to repeat.
	db2, err := Init(cfg)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	Close(db2)
}

func TestIntegration_FullTextSearch(t *testing.T) {
	srv := startDoltServer(t)
	db, err := Init(config.DatabaseConfig{Driver: "mysql", User: "root", Host: "127.0.0.1", Port: srv.Port, Name: "lectern_fts"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Close(db)

	ch := models.Channel{ChannelID: "UC1", Name: "c"}
	if err := db.Create(&ch).Error; err != nil {
		t.Fatal(err)
	}
	v := models.Video{VideoID: "v1", ChannelID: ch.ID, Title: "Bugling elk in September"}
	if err := db.Create(&v).Error; err != nil {
		t.Fatal(err)
	}
	if err := searchindex.Upsert(db, searchindex.Videos, v.ID, searchindex.Fields{"title": v.Title}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := searchindex.Search(db, searchindex.Videos, "september elk", searchindex.SearchOpts{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != v.ID {
		t.Errorf("hits = %+v, want video %d", hits, v.ID)
	}
}
