package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"EcoBot-Chain/pkg/logger"
)

// FileConfig locates the statistics file. Rotation shares the text log's
// size based policy; a zero MaxSizeMB keeps a single growing file.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// FileRecorder appends one JSON object per line. Each record is a single
// write, so a rollover never cuts a line in half.
type FileRecorder struct {
	file *logger.RotatingFile
}

// NewFileRecorder opens the statistics file for appending, creating parent
// directories.
func NewFileRecorder(cfg FileConfig) (*FileRecorder, error) {
	f, err := logger.OpenFile(cfg.Path, logger.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("打开统计文件失败: %w", err)
	}
	return &FileRecorder{file: f}, nil
}

// Record implements Recorder.
func (r *FileRecorder) Record(_ context.Context, event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化统计事件失败: %w", err)
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("写入统计文件失败: %w", err)
	}
	return nil
}

// Close implements Recorder.
func (r *FileRecorder) Close() error { return r.file.Close() }
