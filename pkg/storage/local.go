package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore 本地磁盘存储，对象放在数据目录的 audio/ 之下
type LocalStore struct {
	root string
}

func NewLocalStore(dataDir string) *LocalStore {
	return &LocalStore{root: filepath.Join(dataDir, "audio")}
}

// path 将对象 key 映射到磁盘路径，拒绝越出根目录的 key
func (l *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", os.ErrInvalid
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalStore) Read(key string) (io.ReadCloser, int64, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

func (l *LocalStore) Write(key string, r io.Reader, size int64) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	// 先写临时文件再改名，避免读到半截对象
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (l *LocalStore) Delete(key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *LocalStore) Exists(key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
