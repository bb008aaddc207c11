package vfs

import (
	"errors"
	"fmt"
)

// ErrorKind classifies filesystem failures.
type ErrorKind int

const (
	NotFound ErrorKind = iota + 1
	NotADirectory
	IsADirectory
	PermissionDenied
	DirectoryExists
	DirectoryNotEmpty
	NoPreviousDirectory
	InvalidDestination
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case NotADirectory:
		return "not a directory"
	case IsADirectory:
		return "is a directory"
	case PermissionDenied:
		return "permission denied"
	case DirectoryExists:
		return "directory exists"
	case DirectoryNotEmpty:
		return "directory not empty"
	case NoPreviousDirectory:
		return "no previous directory"
	case InvalidDestination:
		return "invalid destination"
	default:
		return "unknown"
	}
}

// Error is the user-facing failure of a filesystem operation. Its message is
// what the shell prints.
type Error struct {
	Kind   ErrorKind
	Path   string
	Detail string
}

func (e *Error) Error() string {
	switch e.Kind {
	case NotFound:
		return "No such file or directory: " + e.Path
	case NotADirectory:
		return "Not a directory: " + e.Path
	case IsADirectory:
		return "Is a directory: " + e.Path
	case PermissionDenied:
		if e.Detail != "" {
			return "Permission denied: " + e.Detail
		}
		return "Permission denied: " + e.Path
	case DirectoryExists:
		return "Directory exists: " + e.Path
	case DirectoryNotEmpty:
		return "Directory not empty: " + e.Path
	case NoPreviousDirectory:
		return "No previous directory"
	case InvalidDestination:
		if e.Detail != "" {
			return fmt.Sprintf("Invalid destination: %s (%s)", e.Path, e.Detail)
		}
		return "Invalid destination: " + e.Path
	default:
		return e.Detail
	}
}

// IsKind reports whether err carries a filesystem error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fsErr *Error
	if errors.As(err, &fsErr) {
		return fsErr.Kind == kind
	}
	return false
}

func errNotFound(path string) error      { return &Error{Kind: NotFound, Path: path} }
func errNotADirectory(path string) error { return &Error{Kind: NotADirectory, Path: path} }
func errIsADirectory(path string) error  { return &Error{Kind: IsADirectory, Path: path} }

func errDenied(detail string) error {
	return &Error{Kind: PermissionDenied, Detail: detail}
}

func errReadonlyNode(path string) error {
	return &Error{Kind: PermissionDenied, Path: path, Detail: path + " is read-only"}
}
