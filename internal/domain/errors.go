package domain

import "errors"

type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Error 业务错误：稳定的 Kind + Code + 可读信息
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(kind Kind, code, msg string) *Error { return &Error{Kind: kind, Code: code, Msg: msg} }

var (
	ErrUnauthenticated = newErr(KindUnauthorized, "UNAUTHENTICATED", "login required")
	ErrBadCredentials  = newErr(KindUnauthorized, "BAD_CREDENTIALS", "invalid credentials")
	ErrEmailTaken      = newErr(KindConflict, "EMAIL_TAKEN", "email already registered")

	ErrUserNotFound = newErr(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrRoomNotFound = newErr(KindNotFound, "ROOM_NOT_FOUND", "room not found")
	ErrFeedNotFound = newErr(KindNotFound, "FEED_NOT_FOUND", "feed not found")

	ErrInvalidPassword   = newErr(KindInvalidInput, "INVALID_PASSWORD", "invalid room password")
	ErrRoomAtCapacity    = newErr(KindInvalidInput, "ROOM_AT_CAPACITY", "room cannot exceed 8 participants")
	ErrCannotRemoveOwner = newErr(KindInvalidInput, "CANNOT_REMOVE_OWNER", "owner cannot be removed from the room")
	ErrPasswordTooLong   = newErr(KindInvalidInput, "PASSWORD_TOO_LONG", "password must be at most 72 bytes")
	ErrUnsupportedImage  = newErr(KindInvalidInput, "UNSUPPORTED_IMAGE", "only jpg, png, gif, webp and heic images are accepted")

	ErrAlreadyJoined = newErr(KindConflict, "ALREADY_JOINED", "already joined this room")
	ErrRoomDisabled  = newErr(KindConflict, "ROOM_DISABLED", "room is disabled")

	ErrNotParticipant       = newErr(KindForbidden, "NOT_PARTICIPANT", "only room participants may do this")
	ErrNotOwner             = newErr(KindForbidden, "NOT_OWNER", "only the room owner may do this")
	ErrOwnerNotParticipant  = newErr(KindForbidden, "OWNER_NOT_PARTICIPANT", "owner is not a participant of the room")
	ErrTargetNotParticipant = newErr(KindForbidden, "TARGET_NOT_PARTICIPANT", "target user is not a participant of the room")
	ErrOwnerCannotLeave     = newErr(KindForbidden, "OWNER_CANNOT_LEAVE_WHILE_OTHERS_PRESENT", "owner can leave only after all other participants have left")
	ErrOwnerMustDisable     = newErr(KindForbidden, "OWNER_MUST_DISABLE_INSTEAD", "owner cannot leave the room; disable it instead")
	ErrOthersStillPresent   = newErr(KindForbidden, "OTHERS_STILL_PRESENT", "room can be disabled only after all other participants have left")
	ErrNotFeedOwner         = newErr(KindForbidden, "NOT_FEED_OWNER", "only the feed author may do this")

	ErrCodeSpaceExhausted = newErr(KindInternal, "CODE_SPACE_EXHAUSTED", "could not allocate a unique room code")
)

// ErrDuplicate 存储层唯一约束冲突
var ErrDuplicate = errors.New("repository: duplicate entry")

// KindOf 非 *Error 一律视为 Internal
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
