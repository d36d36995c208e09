package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Match with errors.Is.
var (
	ErrInvalidReference     = errors.New("invalid skill reference")
	ErrNotFound             = errors.New("not found")
	ErrAuthenticationFailed = errors.New("github authentication failed")
	ErrRateLimited          = errors.New("github API rate limit exceeded")
	ErrAccessDenied         = errors.New("github access denied")
	ErrTransport            = errors.New("transport error")
	ErrMalformedResponse    = errors.New("malformed response")
	ErrVersionRequired      = errors.New("version required")
	ErrUnsupportedSource    = errors.New("unsupported source type")
	ErrArchiveTooLarge      = errors.New("archive exceeds limits")
	ErrUnsafeMember         = errors.New("unsafe archive member")
	ErrUnsafePath           = errors.New("path traversal in archive")
	ErrUnsafeSymlink        = errors.New("unsafe symlink in archive")
	ErrValidationFailed     = errors.New("validation failed")
	ErrAlreadyExists        = errors.New("skill already exists")
)

// SkillError wraps errors with skill context
type SkillError struct {
	Skill string
	Op    string
	Err   error
}

func (e *SkillError) Error() string {
	if e.Skill == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("skill %s: %s: %v", e.Skill, e.Op, e.Err)
}

func (e *SkillError) Unwrap() error {
	return e.Err
}

// NewSkillError creates a new skill error
func NewSkillError(skill, op string, err error) *SkillError {
	return &SkillError{Skill: skill, Op: op, Err: err}
}

// PathError wraps errors with path context
type PathError struct {
	Path string
	Op   string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError creates a new path error
func NewPathError(path, op string, err error) *PathError {
	return &PathError{Path: path, Op: op, Err: err}
}

// LimitKind names which extraction limit an archive broke.
type LimitKind string

const (
	LimitTooManyFiles   LimitKind = "too-many-files"
	LimitOversizedFile  LimitKind = "oversized-file"
	LimitOversizedTotal LimitKind = "oversized-total"
)

// ArchiveError describes a rejected archive member. Kind is one of the
// Err* archive sentinels; Limit is set only for ErrArchiveTooLarge.
type ArchiveError struct {
	Kind   error
	Limit  LimitKind
	Member string
	Detail string
}

func (e *ArchiveError) Error() string {
	msg := e.Kind.Error()
	if e.Limit != "" {
		msg += " (" + string(e.Limit) + ")"
	}
	if e.Member != "" {
		msg += ": " + e.Member
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ArchiveError) Unwrap() error {
	return e.Kind
}

// ValidationError lists every problem found in a skill manifest.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidationFailed, strings.Join(e.Problems, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
