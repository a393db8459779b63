package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/inkwell/internal/keys"
)

// APIKeyBinding is the optional API-key state embedded in a User. At most one
// binding is active per user; issuing a new key overwrites it in place.
type APIKeyBinding struct {
	Key       string
	ExpiresAt time.Time
}

// User is a registered account.
type User struct {
	Username       string
	HashedPassword string
	CreatedAt      time.Time

	// APIKey is nil until a key has been issued.
	APIKey *APIKeyBinding
}

// Post is a published article. Slug is the bare, author-scoped slug
// ("hello-world"); combine with Author for the namespaced form.
type Post struct {
	Title     string
	Body      string
	Slug      string
	Author    string
	CreatedAt time.Time

	// Comments is populated by GetPostWithComments, oldest first.
	Comments []Comment
}

// Comment is an append-only comment on a post. Post holds the
// author-namespaced slug of the post it belongs to.
type Comment struct {
	UUID      string
	Post      string
	Author    string
	Body      string
	CreatedAt time.Time
}

// PostData is the validated payload for creating a post.
type PostData struct {
	Title string
	Body  string
	Slug  string
}

// Storage shapes. All entity types share one table; the key prefixes are the
// only type discriminator.

type userItem struct {
	PK              string `dynamodbav:"PK"`
	SK              string `dynamodbav:"SK"`
	Username        string `dynamodbav:"username"`
	HashedPassword  string `dynamodbav:"hashedPassword"`
	CreatedAt       string `dynamodbav:"createdAt"`
	APIKey          string `dynamodbav:"apiKey,omitempty"`
	APIKeyExpiresAt string `dynamodbav:"apiKeyExpiresAt,omitempty"`
	GSI1PK          string `dynamodbav:"GSI1PK,omitempty"`
	GSI1SK          string `dynamodbav:"GSI1SK,omitempty"`
}

type postItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	GSI2PK    string `dynamodbav:"GSI2PK"`
	GSI2SK    string `dynamodbav:"GSI2SK"`
	Title     string `dynamodbav:"title"`
	Body      string `dynamodbav:"body"`
	Slug      string `dynamodbav:"slug"`
	Author    string `dynamodbav:"author"`
	CreatedAt string `dynamodbav:"createdAt"`
}

type commentItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI2PK    string `dynamodbav:"GSI2PK"`
	GSI2SK    string `dynamodbav:"GSI2SK"`
	UUID      string `dynamodbav:"uuid"`
	Post      string `dynamodbav:"post"`
	Author    string `dynamodbav:"author"`
	Body      string `dynamodbav:"body"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// itemKind is the closed set of entity types stored in the table.
type itemKind int

const (
	kindUnknown itemKind = iota
	kindUser
	kindPost
	kindComment
)

// kindOf infers the entity type from the primary key prefixes.
func kindOf(pk, sk string) itemKind {
	switch {
	case strings.HasPrefix(pk, keys.CommentPrefix):
		return kindComment
	case strings.HasPrefix(pk, keys.UserPrefix) && strings.HasPrefix(sk, keys.MetaPrefix):
		return kindUser
	case strings.HasPrefix(pk, keys.UserPrefix) && strings.HasPrefix(sk, keys.PostPrefix):
		return kindPost
	}
	return kindUnknown
}

// rawKind reads the primary key out of a raw item and classifies it.
func rawKind(raw map[string]types.AttributeValue) itemKind {
	pk, ok := raw["PK"].(*types.AttributeValueMemberS)
	if !ok {
		return kindUnknown
	}
	sk, ok := raw["SK"].(*types.AttributeValueMemberS)
	if !ok {
		return kindUnknown
	}
	return kindOf(pk.Value, sk.Value)
}

func decodeUser(raw map[string]types.AttributeValue) (*User, error) {
	var item userItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("decode user item: %w", err)
	}

	createdAt, err := keys.ParseTime(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode user createdAt: %w", err)
	}

	user := &User{
		Username:       item.Username,
		HashedPassword: item.HashedPassword,
		CreatedAt:      createdAt,
	}

	if item.APIKey != "" {
		expiresAt, err := keys.ParseTime(item.APIKeyExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("decode user apiKeyExpiresAt: %w", err)
		}
		user.APIKey = &APIKeyBinding{Key: item.APIKey, ExpiresAt: expiresAt}
	}

	return user, nil
}

func decodePost(raw map[string]types.AttributeValue) (*Post, error) {
	var item postItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("decode post item: %w", err)
	}

	createdAt, err := keys.ParseTime(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode post createdAt: %w", err)
	}

	return &Post{
		Title:     item.Title,
		Body:      item.Body,
		Slug:      item.Slug,
		Author:    item.Author,
		CreatedAt: createdAt,
	}, nil
}

func decodeComment(raw map[string]types.AttributeValue) (*Comment, error) {
	var item commentItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("decode comment item: %w", err)
	}

	createdAt, err := keys.ParseTime(item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("decode comment createdAt: %w", err)
	}

	return &Comment{
		UUID:      item.UUID,
		Post:      item.Post,
		Author:    item.Author,
		Body:      item.Body,
		CreatedAt: createdAt,
	}, nil
}
