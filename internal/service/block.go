package service

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/SamWang8891/clippy/internal/blob"
	"github.com/SamWang8891/clippy/internal/metrics"
	"github.com/SamWang8891/clippy/internal/session"
	"github.com/SamWang8891/clippy/internal/ws"
)

// BlockService 封装 block 账本相关的业务逻辑。内容始终按不
// 透明字节处理，不做任何解析或解密。
type BlockService struct {
	reg   *session.Registry
	hub   *ws.Hub
	blobs *blob.Store
}

func NewBlockService(reg *session.Registry, hub *ws.Hub, blobs *blob.Store) *BlockService {
	return &BlockService{reg: reg, hub: hub, blobs: blobs}
}

// CreateText 追加一个文本块并广播 block_created。内容同时镜像
// 到 blob 存储，供下载接口回放；镜像失败不影响账本（内容内联）。
func (s *BlockService) CreateText(sessionID, userID, content string) (session.Block, error) {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return session.Block{}, err
	}
	b, err := sess.AppendText(userID, content)
	if err != nil {
		return session.Block{}, err
	}
	if err := s.blobs.SaveText(sess.ID, b.ID, content); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Uint64("block_id", b.ID).Msg("mirror text block")
	}
	s.hub.Broadcast(sess.ID, ws.BlockCreated(b), userID)
	return b, nil
}

// Upload 接收一个文件块。先预留 block ID 并落盘（超限在提交
// 任何账本变更前返回 ErrTooLarge），落盘成功才入账并广播。
func (s *BlockService) Upload(sessionID, userID, filename string, r io.Reader) (session.Block, error) {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return session.Block{}, err
	}
	id, err := sess.ReserveBlockID(userID)
	if err != nil {
		return session.Block{}, err
	}
	storedName, size, err := s.blobs.SaveFile(sess.ID, id, filename, r)
	if err != nil {
		return session.Block{}, err
	}
	b, err := sess.AppendFile(userID, id, filename, storedName, size)
	if err != nil {
		// 上传期间成员已被移除，回收刚落盘的文件
		if rmErr := s.blobs.Remove(sess.ID, storedName); rmErr != nil {
			log.Warn().Err(rmErr).Str("session_id", sess.ID).Str("name", storedName).Msg("remove orphan upload")
		}
		return session.Block{}, err
	}
	metrics.UploadBytesTotal.Add(float64(size))
	s.hub.Broadcast(sess.ID, ws.BlockCreated(b), userID)
	return b, nil
}

// Delete 删除一个 block 并回收其 blob。block_deleted 发给包括
// 操作者在内的所有连接。
func (s *BlockService) Delete(sessionID, userID string, blockID uint64) error {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.EnsureMember(userID); err != nil {
		return err
	}
	b, err := sess.RemoveBlock(blockID)
	if err != nil {
		return err
	}
	name := blob.TextName(b.ID)
	if b.Type == session.BlockFile {
		name = b.StoredName
	}
	if err := s.blobs.Remove(sess.ID, name); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Uint64("block_id", b.ID).Msg("reclaim block blob")
	}
	s.hub.Broadcast(sess.ID, ws.BlockDeleted(blockID), "")
	return nil
}

// Download 打开一个 block 的内容流。返回的文件名：文件块用
// 原始文件名，文本块用 text_<id>.txt。
func (s *BlockService) Download(sessionID string, blockID uint64) (string, int64, io.ReadCloser, error) {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return "", 0, nil, err
	}
	b, err := sess.Block(blockID)
	if err != nil {
		return "", 0, nil, err
	}
	var name, downloadName string
	if b.Type == session.BlockFile {
		name = b.StoredName
		downloadName = b.Filename
	} else {
		name = blob.TextName(b.ID)
		downloadName = fmt.Sprintf("text_%d.txt", b.ID)
	}
	size, err := s.blobs.Size(sess.ID, name)
	if err != nil {
		return "", 0, nil, session.ErrBlockNotFound
	}
	f, err := s.blobs.Open(sess.ID, name)
	if err != nil {
		return "", 0, nil, session.ErrBlockNotFound
	}
	return downloadName, size, f, nil
}
