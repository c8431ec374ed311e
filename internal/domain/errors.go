package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrInvalidSectionType = errors.New("invalid section type")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrInvalidContent     = errors.New("invalid comment content")
	ErrInvalidTargetID    = errors.New("invalid target id")
	ErrInvalidVersion     = errors.New("invalid version number")
	ErrDuplicateVariant   = errors.New("variant already registered")
)
