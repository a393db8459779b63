// Package keys builds the composite DynamoDB keys for the single blog table.
package keys

import (
	"fmt"
	"strings"
	"time"
)

// Key prefixes. The item type is inferred from these, never from a
// discriminator attribute.
const (
	UserPrefix    = "USER#"
	MetaPrefix    = "META#"
	PostPrefix    = "POST#"
	CommentPrefix = "COMMENT#"
	APIKeyPrefix  = "APIKEY#"
)

// timeLayout renders timestamps so that lexical order equals chronological
// order. Millisecond precision keeps back-to-back comments ordered.
// Changing this layout breaks every ordering query against the table.
const timeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the canonical table timestamp format (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a timestamp written by FormatTime. Second-precision
// RFC 3339 values are accepted for items written before the millisecond
// layout was adopted.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Slug returns the author-namespaced slug, e.g. "alice/hello-world".
// Slug uniqueness is scoped per author, not global.
func Slug(author, slug string) string {
	return fmt.Sprintf("%s/%s", author, slug)
}

// SplitSlug splits an author-namespaced slug back into author and slug.
func SplitSlug(s string) (author, slug string, ok bool) {
	author, slug, ok = strings.Cut(s, "/")
	return author, slug, ok
}

// User returns the primary key of a user item.
func User(username string) (pk, sk string) {
	return UserPrefix + username, MetaPrefix + username
}

// Post returns the primary key of a post item.
func Post(author, slug string) (pk, sk string) {
	return UserPrefix + author, PostPrefix + Slug(author, slug)
}

// PostByCreation returns the GSI1 key of a post item. Posts of one author
// share the partition and sort by creation time.
func PostByCreation(author string, createdAt time.Time) (pk, sk string) {
	return UserPrefix + author, PostPrefix + FormatTime(createdAt)
}

// PostBySlug returns the GSI2 key of a post item. The post shares this
// partition with its comments.
func PostBySlug(author, slug string) (pk, sk string) {
	k := PostPrefix + Slug(author, slug)
	return k, k
}

// Comment returns the primary key of a comment item.
func Comment(id string) (pk, sk string) {
	return CommentPrefix + id, CommentPrefix + id
}

// CommentByPost returns the GSI2 key of a comment item, partitioned under
// the post it belongs to and sorted by creation time.
func CommentByPost(author, slug string, createdAt time.Time) (pk, sk string) {
	return PostPrefix + Slug(author, slug), CommentPrefix + FormatTime(createdAt)
}

// APIKey returns the GSI1 key projected onto a user item holding an active
// API key.
func APIKey(key string) (pk, sk string) {
	k := APIKeyPrefix + key
	return k, k
}
