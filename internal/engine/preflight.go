package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CheckPhonemizer verifies that eSpeak NG is reachable. The worker calls it
// transitively, so a missing binary would otherwise only fail deep inside
// the first synthesis.
func CheckPhonemizer() error {
	for _, name := range []string{"espeak-ng", "espeak"} {
		if _, err := exec.LookPath(name); err == nil {
			return nil
		}
	}
	return fmt.Errorf("espeak-ng not found on PATH (required by the Kokoro phonemizer)")
}

// CheckFFmpeg probes for a usable ffmpeg binary and returns its path.
func CheckFFmpeg(configured string) (string, error) {
	candidates := []string{}
	if strings.TrimSpace(configured) != "" {
		candidates = append(candidates, strings.TrimSpace(configured))
	}
	candidates = append(candidates, "ffmpeg")
	for _, c := range candidates {
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		cmd := exec.Command(path, "-version")
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Run(); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("ffmpeg not found")
}

// DownloadFileIfMissing fetches url into path when the file does not exist
// yet, writing through a temp file so partial downloads never shadow the
// real artifact. Used to pull model weights and voice packs on first run.
func DownloadFileIfMissing(path, url string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("empty target path")
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	tmpPath := path + ".partial"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return closeErr
	}
	if n <= 0 {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("downloaded empty payload from %s", url)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
