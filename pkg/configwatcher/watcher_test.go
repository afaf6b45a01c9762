package configwatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"oabt_client/internal/config"
)

func TestWatchConfigReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	write := func(url string) {
		t.Helper()
		content := "api:\n  base_url: " + url + "\nstorage:\n  driver: memory\n"
		if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("http://first.example")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *config.Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, file, func(cfg *config.Config) {
			select {
			case reloaded <- cfg:
			default:
			}
		})
	}()

	// 等待 watcher 就绪
	time.Sleep(200 * time.Millisecond)
	write("http://second.example")

	select {
	case cfg := <-reloaded:
		if cfg.API.BaseURL != "http://second.example" {
			t.Errorf("expected reloaded base url, got %q", cfg.API.BaseURL)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
