package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// backupLayout sorts lexically in creation order.
const backupLayout = "20060102T150405.000"

// RotatingFile is an append-only file shared by the text log and the
// statistics sink. Each Write lands in a single file, so a log line or a
// JSON record is never split across a rollover. Backups are named
// <path>.<UTC timestamp> and pruned by count and age after every rollover.
type RotatingFile struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxBytes int64
	keep     int
	maxAge   time.Duration
	now      func() time.Time
}

// OpenFile opens path for appending, creating parent directories. A zero
// MaxSizeMB disables rollover.
func OpenFile(path string, rotation RotationConfig) (*RotatingFile, error) {
	if path == "" {
		return nil, fmt.Errorf("日志文件路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
	}
	f := &RotatingFile{
		path:     path,
		maxBytes: int64(rotation.MaxSizeMB) << 20,
		keep:     rotation.MaxBackups,
		maxAge:   time.Duration(rotation.MaxAgeDays) * 24 * time.Hour,
		now:      time.Now,
	}
	if f.keep <= 0 {
		f.keep = 7
	}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the active file path.
func (f *RotatingFile) Path() string { return f.path }

// Write implements io.Writer.
func (f *RotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return 0, os.ErrClosed
	}
	if f.maxBytes > 0 && f.size > 0 && f.size+int64(len(p)) > f.maxBytes {
		if err := f.rollover(); err != nil {
			return 0, err
		}
	}
	n, err := f.file.Write(p)
	f.size += int64(n)
	return n, err
}

// Close implements io.Closer. Writes after Close fail with os.ErrClosed.
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func (f *RotatingFile) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开日志文件 %s 失败: %w", f.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("读取日志文件状态失败: %w", err)
	}
	f.file, f.size = file, info.Size()
	return nil
}

func (f *RotatingFile) rollover() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("关闭日志文件失败: %w", err)
	}
	f.file = nil

	backup := f.path + "." + f.now().UTC().Format(backupLayout)
	for i := 1; fileExists(backup); i++ {
		backup = fmt.Sprintf("%s.%s-%d", f.path, f.now().UTC().Format(backupLayout), i)
	}
	if err := os.Rename(f.path, backup); err != nil {
		// Keep appending to the old file rather than losing records.
		if oerr := f.open(); oerr != nil {
			return oerr
		}
		return fmt.Errorf("日志轮转失败: %w", err)
	}
	f.prune()
	return f.open()
}

// prune keeps the newest backups up to keep and drops any older than maxAge.
func (f *RotatingFile) prune() {
	backups := f.backups()
	cutoff := time.Time{}
	if f.maxAge > 0 {
		cutoff = f.now().Add(-f.maxAge)
	}
	for i, name := range backups {
		drop := i < len(backups)-f.keep
		if !drop && !cutoff.IsZero() {
			if info, err := os.Stat(name); err == nil && info.ModTime().Before(cutoff) {
				drop = true
			}
		}
		if drop {
			_ = os.Remove(name)
		}
	}
}

// backups lists rotated files, oldest first.
func (f *RotatingFile) backups() []string {
	matches, _ := filepath.Glob(f.path + ".*")
	out := matches[:0]
	for _, m := range matches {
		if strings.HasPrefix(m, f.path+".") && len(m) >= len(f.path)+1+len(backupLayout) {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
