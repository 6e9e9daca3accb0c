package service

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/SamWang8891/clippy/internal/blob"
	"github.com/SamWang8891/clippy/internal/session"
)

func TestBlockService_CreateText(t *testing.T) {
	env := newTestEnv(t)
	created := env.sessions.Create("Alice")

	b, err := env.blocks.CreateText(created.SessionID, created.UserID, "copied text")
	if err != nil {
		t.Fatalf("CreateText() error = %v", err)
	}
	if b.Type != session.BlockText || b.Content != "copied text" {
		t.Errorf("block = %+v, want text block with content", b)
	}
	if b.CreatedBy != created.UserID {
		t.Errorf("created_by = %q, want %q", b.CreatedBy, created.UserID)
	}

	// 文本块镜像到 blob 存储，供下载接口回放
	f, err := env.blobs.Open(created.SessionID, blob.TextName(b.ID))
	if err != nil {
		t.Fatalf("text mirror missing: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "copied text" {
		t.Errorf("mirror content = %q, want copied text", data)
	}
}

func TestBlockService_CreateTextByNonMember(t *testing.T) {
	env := newTestEnv(t)
	created := env.sessions.Create("Alice")

	if _, err := env.blocks.CreateText(created.SessionID, "ghost", "x"); !errors.Is(err, session.ErrNotMember) {
		t.Errorf("CreateText() error = %v, want ErrNotMember", err)
	}
	if _, err := env.blocks.CreateText("nope99", created.UserID, "x"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("CreateText() error = %v, want ErrSessionNotFound", err)
	}
}

func TestBlockService_Upload(t *testing.T) {
	env := newTestEnv(t)
	created := env.sessions.Create("Alice")

	b, err := env.blocks.Upload(created.SessionID, created.UserID, "notes.txt", strings.NewReader("file body"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if b.Type != session.BlockFile || b.Filename != "notes.txt" || b.Size != 9 {
		t.Errorf("block = %+v, want file block of 9 bytes", b)
	}

	name, size, rc, err := env.blocks.Download(created.SessionID, b.ID)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer rc.Close()
	if name != "notes.txt" {
		t.Errorf("download name = %q, want original notes.txt", name)
	}
	if size != 9 {
		t.Errorf("download size = %d, want 9", size)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "file body" {
		t.Errorf("download content = %q, want file body", data)
	}
}

func TestBlockService_UploadTooLargeLeavesLedgerUnchanged(t *testing.T) {
	env := newTestEnv(t) // 上限 64 字节
	created := env.sessions.Create("Alice")

	big := strings.NewReader(strings.Repeat("x", 65))
	if _, err := env.blocks.Upload(created.SessionID, created.UserID, "big.bin", big); !errors.Is(err, blob.ErrTooLarge) {
		t.Fatalf("Upload() error = %v, want ErrTooLarge", err)
	}

	snap, _ := env.sessions.Get(created.SessionID)
	if len(snap.Blocks) != 0 {
		t.Errorf("ledger has %d blocks after failed upload, want 0", len(snap.Blocks))
	}

	// 失败上传不影响后续 block 入账
	if _, err := env.blocks.CreateText(created.SessionID, created.UserID, "still works"); err != nil {
		t.Errorf("CreateText() after failed upload error = %v", err)
	}
}

func TestBlockService_UploadByNonMember(t *testing.T) {
	env := newTestEnv(t)
	created := env.sessions.Create("Alice")

	if _, err := env.blocks.Upload(created.SessionID, "ghost", "a.txt", strings.NewReader("x")); !errors.Is(err, session.ErrNotMember) {
		t.Errorf("Upload() error = %v, want ErrNotMember", err)
	}
}

func TestBlockService_Delete(t *testing.T) {
	env := newTestEnv(t)
	created := env.sessions.Create("Alice")
	b, err := env.blocks.Upload(created.SessionID, created.UserID, "a.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if err := env.blocks.Delete(created.SessionID, created.UserID, b.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	snap, _ := env.sessions.Get(created.SessionID)
	if len(snap.Blocks) != 0 {
		t.Errorf("ledger has %d blocks after delete, want 0", len(snap.Blocks))
	}
	if _, err := env.blobs.Open(created.SessionID, b.StoredName); err == nil {
		t.Error("blob still readable after delete")
	}
	if _, _, _, err := env.blocks.Download(created.SessionID, b.ID); !errors.Is(err, session.ErrBlockNotFound) {
		t.Errorf("Download() after delete error = %v, want ErrBlockNotFound", err)
	}
}

func TestBlockService_DeleteErrors(t *testing.T) {
	env := newTestEnv(t)
	created := env.sessions.Create("Alice")

	if err := env.blocks.Delete(created.SessionID, created.UserID, 42); !errors.Is(err, session.ErrBlockNotFound) {
		t.Errorf("Delete(unknown block) error = %v, want ErrBlockNotFound", err)
	}
	b, _ := env.blocks.CreateText(created.SessionID, created.UserID, "x")
	if err := env.blocks.Delete(created.SessionID, "ghost", b.ID); !errors.Is(err, session.ErrNotMember) {
		t.Errorf("Delete() by non-member error = %v, want ErrNotMember", err)
	}
}

func TestBlockService_DownloadText(t *testing.T) {
	env := newTestEnv(t)
	created := env.sessions.Create("Alice")
	b, _ := env.blocks.CreateText(created.SessionID, created.UserID, "hello")

	name, size, rc, err := env.blocks.Download(created.SessionID, b.ID)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer rc.Close()
	if want := "text_" + strconv.FormatUint(b.ID, 10) + ".txt"; name != want {
		t.Errorf("download name = %q, want %q", name, want)
	}
	if size != 5 {
		t.Errorf("download size = %d, want 5", size)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "hello" {
		t.Errorf("download content = %q, want hello", data)
	}
}
