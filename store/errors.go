package store

import "errors"

var (
	// ErrUserNotFound is returned when no user item exists for a username.
	ErrUserNotFound = errors.New("inkwell: user not found")

	// ErrAPIKeyNotFound is returned when an API key resolves to no user.
	ErrAPIKeyNotFound = errors.New("inkwell: api key not found")

	// ErrPostNotFound is returned when no post exists for an author and slug.
	ErrPostNotFound = errors.New("inkwell: post not found")

	// ErrDuplicateUser is returned when the username is already registered.
	ErrDuplicateUser = errors.New("inkwell: user already exists")

	// ErrDuplicateSlug is returned when the author already has a post with
	// that slug. Slugs are unique per author, not globally.
	ErrDuplicateSlug = errors.New("inkwell: slug already exists for this author")

	// ErrDuplicateComment is returned on a comment id collision.
	ErrDuplicateComment = errors.New("inkwell: comment id already exists")

	// ErrBackendUnavailable wraps any backend failure that is not one of the
	// typed conditions above. Callers never see raw SDK error types.
	ErrBackendUnavailable = errors.New("inkwell: backend unavailable")
)
