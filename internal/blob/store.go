package blob

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrTooLarge 表示写入超出配置的最大上传体积。
var ErrTooLarge = errors.New("payload exceeds maximum upload size")

// Store 在一个 afero 文件系统上保存会话的 blob：每个会话一个
// 子目录，文件块落盘为 file_<id><ext>，文本块镜像为
// text_block_<id>.txt。内容对存储层不透明。
type Store struct {
	fs       afero.Fs
	root     string
	maxBytes int64
}

func NewStore(fs afero.Fs, root string, maxBytes int64) (*Store, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{fs: fs, root: root, maxBytes: maxBytes}, nil
}

// MaxBytes 返回单个上传的体积上限。
func (s *Store) MaxBytes() int64 { return s.maxBytes }

// FileName 返回文件块的落盘名，保留原始扩展名。
func FileName(blockID uint64, origName string) string {
	return fmt.Sprintf("file_%d%s", blockID, path.Ext(origName))
}

// TextName 返回文本块镜像文件的落盘名。
func TextName(blockID uint64) string {
	return fmt.Sprintf("text_block_%d.txt", blockID)
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// SaveFile 把上传流写入会话目录。先写 .part 临时文件，超限或
// 出错时删除临时文件后返回，成功才改名落定，保证不会留下半截数据。
func (s *Store) SaveFile(sessionID string, blockID uint64, origName string, r io.Reader) (storedName string, size int64, err error) {
	dir := s.sessionDir(sessionID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", 0, err
	}
	storedName = FileName(blockID, origName)
	tmp := filepath.Join(dir, storedName+".part")
	f, err := s.fs.Create(tmp)
	if err != nil {
		return "", 0, err
	}
	size, err = io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return "", 0, err
	}
	if err := s.fs.Rename(tmp, filepath.Join(dir, storedName)); err != nil {
		_ = s.fs.Remove(tmp)
		return "", 0, err
	}
	return storedName, size, nil
}

// SaveText 把文本块内容镜像到会话目录，供下载接口直接回放。
func (s *Store) SaveText(sessionID string, blockID uint64, content string) error {
	dir := s.sessionDir(sessionID)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, filepath.Join(dir, TextName(blockID)), []byte(content), 0o644)
}

// Open 打开一个已落盘的 blob。
func (s *Store) Open(sessionID, name string) (afero.File, error) {
	return s.fs.Open(filepath.Join(s.sessionDir(sessionID), name))
}

// Size 返回一个已落盘 blob 的字节数。
func (s *Store) Size(sessionID, name string) (int64, error) {
	fi, err := s.fs.Stat(filepath.Join(s.sessionDir(sessionID), name))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Remove 删除单个 blob，文件不存在视为成功。
func (s *Store) Remove(sessionID, name string) error {
	err := s.fs.Remove(filepath.Join(s.sessionDir(sessionID), name))
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// RemoveSession 回收整个会话目录，幂等。
func (s *Store) RemoveSession(sessionID string) error {
	err := s.fs.RemoveAll(s.sessionDir(sessionID))
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, afero.ErrFileNotFound)
}

// Purge 清空上传根目录（保留 .gitkeep），进程启动时调用：
// 会话不跨重启存活，遗留的 blob 一律是垃圾。
func (s *Store) Purge() error {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".gitkeep" {
			continue
		}
		if err := s.fs.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
