package model

import "errors"

// Ошибки движка. Оборачиваются через %w, проверяются errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrOverlapConflict    = errors.New("slot overlaps an existing slot of the owner")
	ErrVersionConflict    = errors.New("stale slot version")
	ErrIllegalTransition  = errors.New("illegal slot state transition")
	ErrForbidden          = errors.New("actor is not allowed to perform this action")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStoreNotConfigured = errors.New("storage backend is not configured")
)

// ErrorCode короткий машинный код ошибки для внешних слоёв
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOverlapConflict):
		return "overlap_conflict"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
