package session

import "errors"

// 领域层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrBlockNotFound   = errors.New("block not found")
	ErrJoinDisabled    = errors.New("session is not accepting new members")
	ErrNotHost         = errors.New("host privileges required")
	ErrNotMember       = errors.New("user not in session")
)
