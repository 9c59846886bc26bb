// Package storage はアップロードファイルの一時保存領域を提供します。
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidID はディレクトリ名として使えないIDを表します。
var ErrInvalidID = errors.New("storage: invalid workspace id")

// Local はローカルファイルシステム上の作業領域です。
// 保存先: <root>/<id>/in/
type Local struct {
	root string
}

// NewLocal は root を作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage: root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
	}
	return &Local{root: root}, nil
}

// Root は作業領域のルートを返します。
func (l *Local) Root() string {
	return l.root
}

// Dir は id の作業ディレクトリのパスを返します。
func (l *Local) Dir(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(l.root, id), nil
}

// Create は id の作業ディレクトリと入力用サブディレクトリを作成します。
func (l *Local) Create(id string) (string, error) {
	dir, err := l.Dir(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(dir, "in"), 0o750); err != nil {
		return "", fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
	}
	return dir, nil
}

// Remove は id の作業ディレクトリを削除します。存在しない場合は何もしません。
func (l *Local) Remove(id string) error {
	dir, err := l.Dir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveAfter は一定時間後に作業ディレクトリを削除します。
func (l *Local) RemoveAfter(id string, after time.Duration) *time.Timer {
	return time.AfterFunc(after, func() {
		_ = l.Remove(id)
	})
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return ErrInvalidID
	}
	return nil
}
