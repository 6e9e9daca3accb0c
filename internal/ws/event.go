package ws

import (
	"github.com/SamWang8891/clippy/internal/session"
)

// EventType 是广播事件的封闭枚举，所有取值都在本文件列出，
// 不允许在别处扩展。
type EventType string

const (
	EventUserJoined            EventType = "user_joined"
	EventUserLeft              EventType = "user_left"
	EventBlockCreated          EventType = "block_created"
	EventBlockDeleted          EventType = "block_deleted"
	EventHostTransferred       EventType = "host_transferred"
	EventJoinPermissionChanged EventType = "join_permission_changed"
	EventSessionDestroyed      EventType = "session_destroyed"
)

// Event 是推送给会话成员的一条事件，字段按事件类型选用。
type Event struct {
	Type      EventType      `json:"type"`
	User      *session.User  `json:"user,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Block     *session.Block `json:"block,omitempty"`
	BlockID   uint64         `json:"block_id,omitempty"`
	NewHostID string         `json:"new_host_id,omitempty"`
	AllowJoin *bool          `json:"allow_join,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

func UserJoined(u session.User) Event {
	return Event{Type: EventUserJoined, User: &u}
}

func UserLeft(userID string) Event {
	return Event{Type: EventUserLeft, UserID: userID}
}

func BlockCreated(b session.Block) Event {
	return Event{Type: EventBlockCreated, Block: &b}
}

func BlockDeleted(blockID uint64) Event {
	return Event{Type: EventBlockDeleted, BlockID: blockID}
}

func HostTransferred(newHostID string) Event {
	return Event{Type: EventHostTransferred, NewHostID: newHostID}
}

func JoinPermissionChanged(allow bool) Event {
	return Event{Type: EventJoinPermissionChanged, AllowJoin: &allow}
}

func SessionDestroyed(reason string) Event {
	return Event{Type: EventSessionDestroyed, Reason: reason}
}
