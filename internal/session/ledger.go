package session

import "time"

// BlockType 区分文本块与文件块，内容对服务端始终不透明。
type BlockType string

const (
	BlockText BlockType = "text"
	BlockFile BlockType = "file"
)

// Block 是一条共享内容。文本块内容内联（客户端已加密），
// 文件块只保存落盘文件名与元数据。
type Block struct {
	ID        uint64    `json:"id"`
	Type      BlockType `json:"type"`
	Content   string    `json:"content,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	Size      int64     `json:"size,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	// StoredName 是文件块在 blob 存储里的落盘名，不对外输出。
	StoredName string `json:"-"`
}

// block 账本：ID 在会话内单调递增、删除后不复用，顺序即插入顺序。

// ReserveBlockID 为一次即将发生的追加预留一个 ID。上传场景需要
// 先落盘再入账，预留保证失败的上传不会在账本里留下条目，
// 而消耗掉的 ID 不再复用。
func (s *Session) ReserveBlockID(userID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userLocked(userID) == nil {
		return 0, ErrNotMember
	}
	id := s.nextBlockID
	s.nextBlockID++
	return id, nil
}

// AppendText 追加一个文本块并分配新 ID。
func (s *Session) AppendText(userID, content string) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userLocked(userID) == nil {
		return Block{}, ErrNotMember
	}
	b := Block{
		ID:        s.nextBlockID,
		Type:      BlockText,
		Content:   content,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}
	s.nextBlockID++
	s.blocks = append(s.blocks, b)
	s.touchLocked()
	return b, nil
}

// AppendFile 用预留的 ID 追加一个文件块。blob 已经落盘，
// 这里只做最终入账；期间成员被移除则拒绝，由调用方回收文件。
func (s *Session) AppendFile(userID string, id uint64, filename, storedName string, size int64) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userLocked(userID) == nil {
		return Block{}, ErrNotMember
	}
	b := Block{
		ID:         id,
		Type:       BlockFile,
		Filename:   filename,
		Size:       size,
		CreatedBy:  userID,
		CreatedAt:  time.Now(),
		StoredName: storedName,
	}
	s.blocks = append(s.blocks, b)
	s.touchLocked()
	return b, nil
}

// RemoveBlock 从账本中删除一个 block，返回被删条目供调用方回收 blob。
func (s *Session) RemoveBlock(id uint64) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.blocks {
		if b.ID == id {
			s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
			s.touchLocked()
			return b, nil
		}
	}
	return Block{}, ErrBlockNotFound
}

// Block 按 ID 查找一个 block。
func (s *Session) Block(id uint64) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.ID == id {
			return b, nil
		}
	}
	return Block{}, ErrBlockNotFound
}

// Blocks 返回账本的插入序快照。
func (s *Session) Blocks() []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Block, len(s.blocks))
	copy(out, s.blocks)
	return out
}
