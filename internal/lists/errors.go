package lists

import "errors"

var (
	// ErrListNotFound is returned when a list file does not exist.
	ErrListNotFound = errors.New("list does not exist")

	// ErrListExists is returned when creating a list that already exists.
	ErrListExists = errors.New("list already exists")

	// ErrReservedName is returned for names that collide with list subcommands.
	ErrReservedName = errors.New("name is not allowed for a list")

	// ErrInvalidName is returned for empty names or names containing a path separator.
	ErrInvalidName = errors.New("invalid list name")

	// ErrSystemList is returned when deleting or re-tagging a system list.
	ErrSystemList = errors.New("system list cannot be modified")
)
