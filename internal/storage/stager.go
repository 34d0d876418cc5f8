package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"resume-scanner/internal/types"
)

// StagedDocument 已暂存的原始上传
type StagedDocument struct {
	// Location 本地路径或对象键
	Location string
	// URI 传给解析器的资源名
	URI  string
	Size int64
}

// Stager 在处理期间暂存原始上传，终态后必须调用 Cleanup
type Stager interface {
	Stage(ctx context.Context, runID string, doc types.RawDocument) (*StagedDocument, error)
	Cleanup(ctx context.Context, staged *StagedDocument) error
}

var _ Stager = (*LocalStager)(nil)

// LocalStager 把上传写入本地临时目录
type LocalStager struct {
	dir string
}

// NewLocalStager 创建本地暂存器，dir 为空时使用系统临时目录
func NewLocalStager(dir string) *LocalStager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &LocalStager{dir: dir}
}

// Stage 写入临时文件
func (s *LocalStager) Stage(ctx context.Context, runID string, doc types.RawDocument) (*StagedDocument, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建暂存目录失败: %w", err)
	}
	f, err := os.CreateTemp(s.dir, "resume-"+runID+"-*"+stagedExt(doc.Filename))
	if err != nil {
		return nil, fmt.Errorf("创建暂存文件失败: %w", err)
	}
	if _, err := f.Write(doc.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("写入暂存文件失败: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("关闭暂存文件失败: %w", err)
	}
	return &StagedDocument{
		Location: f.Name(),
		URI:      f.Name(),
		Size:     int64(len(doc.Data)),
	}, nil
}

// Cleanup 删除临时文件，文件已不存在不算错误
func (s *LocalStager) Cleanup(ctx context.Context, staged *StagedDocument) error {
	if staged == nil || staged.Location == "" {
		return nil
	}
	if err := os.Remove(staged.Location); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除暂存文件失败: %w", err)
	}
	return nil
}

func stagedExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return ".pdf"
	}
	return ext
}
