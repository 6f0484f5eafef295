// Package backup copies the store file into a dated directory tree.
package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Runner performs backups of a sqlite store file.
type Runner struct {
	log *zap.Logger

	// Now is the injectable time source; tests pin it.
	Now func() time.Time
}

// New wires a backup runner.
func New(log *zap.Logger) *Runner {
	return &Runner{log: log, Now: time.Now}
}

// Run copies the database file to <root>/<YYYY-MM>/<DD>/patients_<HH-MM-SS>.db,
// creating the month and day directories. Returns the destination path.
func (r *Runner) Run(dbPath, root string) (string, error) {
	now := r.Now()
	dir := filepath.Join(root, now.Format("2006-01"), now.Format("02"))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	dst := filepath.Join(dir, fmt.Sprintf("patients_%s.db", now.Format("15-04-05")))

	if err := copyFile(dbPath, dst); err != nil {
		return "", err
	}
	r.log.Info("backup written", zap.String("path", dst))
	return dst, nil
}

// WritableRoot reports whether the backup root exists and accepts writes.
func WritableRoot(root string) bool {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(root, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return false
	}
	f.Close()
	_ = os.Remove(probe)
	return true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy store file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("flush backup file: %w", err)
	}
	return nil
}
