package storage

import (
	"io"
)

// Store 音频对象存储抽象。key 形如 "generations/<uuid>.wav"、"samples/<uuid>.wav"
type Store interface {
	Read(key string) (io.ReadCloser, int64, error)
	Write(key string, r io.Reader, size int64) error
	Delete(key string) error
	Exists(key string) (bool, error)
}

// New 按配置创建存储实例；本地桌面默认磁盘存储，远端部署可切 minio
func New(storageType, dataDir string) Store {
	if storageType == "minio" {
		return NewMinioStore()
	}
	return NewLocalStore(dataDir)
}

// ReadAll 读取对象全部内容
func ReadAll(s Store, key string) ([]byte, error) {
	rc, _, err := s.Read(key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
