// Package store is the single-table DynamoDB repository behind the blog.
//
// Every entity type lives in one table; the composite key prefixes are the
// only type discriminator:
//
//	User     PK USER#<username>       SK META#<username>
//	Post     PK USER#<author>         SK POST#<author>/<slug>
//	Comment  PK COMMENT#<uuid>        SK COMMENT#<uuid>
//
// Two global secondary indexes replace relational lookups:
//
//	GSI1  APIKEY#<key> / APIKEY#<key>    api key -> user
//	GSI1  USER#<author> / POST#<iso>     user -> posts, by creation time
//	GSI2  POST#<author>/<slug> / ...     slug -> post + its comments
//
// Timestamps inside sort keys are ISO-8601 UTC strings, so lexical order is
// chronological order. Uniqueness (usernames, per-author slugs) is enforced
// with conditional writes on key non-existence; there are no transactions
// and no locks.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrUserNotFound], [ErrPostNotFound], [ErrAPIKeyNotFound] - missing items
//   - [ErrDuplicateUser], [ErrDuplicateSlug] - conditional write lost to an
//     existing item
//   - [ErrBackendUnavailable] - any other backend failure, wrapped
package store
