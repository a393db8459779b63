package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/inkwell/auth"
	"github.com/jacentio/inkwell/internal/keys"
)

// API is the subset of the DynamoDB client the store depends on. Narrowing
// the dependency keeps the store testable against an in-memory fake.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store is the single-table repository for users, posts, comments and
// api-key bindings. It holds no per-call mutable state and is safe for
// concurrent use; all coordination is delegated to DynamoDB's conditional
// writes. It performs no retries and applies no timeouts, both are the
// caller's responsibility via ctx.
type Store struct {
	client API
	config Config
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
	}
}

// CreateUser registers a new user with hashed credentials. It returns
// ErrDuplicateUser if the username is taken; under two concurrent calls for
// the same username exactly one succeeds.
func (s *Store) CreateUser(ctx context.Context, username, password string) (*User, error) {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := storeNow()
	pk, sk := keys.User(username)
	av, err := attributevalue.MarshalMap(userItem{
		PK:             pk,
		SK:             sk,
		Username:       username,
		HashedPassword: hashed,
		CreatedAt:      keys.FormatTime(now),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal user item: %w", err)
	}

	if err := s.putIfAbsent(ctx, av); err != nil {
		return nil, translate(err, ErrDuplicateUser)
	}

	return &User{
		Username:       username,
		HashedPassword: hashed,
		CreatedAt:      now,
	}, nil
}

// GetUser fetches a user by username from the base table. Returns
// ErrUserNotFound if no item exists at that key.
func (s *Store) GetUser(ctx context.Context, username string) (*User, error) {
	pk, sk := keys.User(username)

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       primaryKey(pk, sk),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if out.Item == nil {
		return nil, ErrUserNotFound
	}

	return decodeUser(out.Item)
}

// IssueAPIKey binds a fresh API key to the user, overwriting any previous
// binding in place. The overwrite is the revocation mechanism: the old key
// stops resolving the moment the GSI1 projection is replaced.
func (s *Store) IssueAPIKey(ctx context.Context, user *User) (*APIKeyBinding, error) {
	key, expiresAt := auth.NewAPIKey()
	expiresAt = expiresAt.UTC().Truncate(time.Millisecond)

	pk, sk := keys.User(user.Username)
	gsi1pk, gsi1sk := keys.APIKey(key)

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.config.TableName),
		Key:              primaryKey(pk, sk),
		UpdateExpression: aws.String("SET #apikey = :apikey, #expires = :expires, #gsi1pk = :gsi1pk, #gsi1sk = :gsi1sk"),
		ExpressionAttributeNames: map[string]string{
			"#apikey":  "apiKey",
			"#expires": "apiKeyExpiresAt",
			"#gsi1pk":  "GSI1PK",
			"#gsi1sk":  "GSI1SK",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":apikey":  &types.AttributeValueMemberS{Value: key},
			":expires": &types.AttributeValueMemberS{Value: keys.FormatTime(expiresAt)},
			":gsi1pk":  &types.AttributeValueMemberS{Value: gsi1pk},
			":gsi1sk":  &types.AttributeValueMemberS{Value: gsi1sk},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	binding := &APIKeyBinding{Key: key, ExpiresAt: expiresAt}
	user.APIKey = binding
	return binding, nil
}

// GetUserByAPIKey resolves an API key to its user via an exact-match GSI1
// query. Returns ErrAPIKeyNotFound on zero results, which is also what a
// rotated-away key produces.
func (s *Store) GetUserByAPIKey(ctx context.Context, key string) (*User, error) {
	gsi1pk, gsi1sk := keys.APIKey(key)

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.KeyAnd(
			expression.KeyEqual(expression.Key("GSI1PK"), expression.Value(gsi1pk)),
			expression.KeyEqual(expression.Key("GSI1SK"), expression.Value(gsi1sk)),
		)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		IndexName:                 aws.String(s.config.GSI1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	if len(out.Items) == 0 {
		return nil, ErrAPIKeyNotFound
	}

	return decodeUser(out.Items[0])
}

// IsAPIKeyValid reports whether key resolves to a user and has not expired.
// Unknown and expired keys both come back as plain false so callers cannot
// distinguish a key that never existed from one that lapsed.
func (s *Store) IsAPIKeyValid(ctx context.Context, key string) (bool, error) {
	user, err := s.GetUserByAPIKey(ctx, key)
	if errors.Is(err, ErrAPIKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if user.APIKey == nil {
		return false, nil
	}
	return !auth.Expired(user.APIKey.ExpiresAt, time.Now()), nil
}

// CreatePost persists a new post for author. The single conditional put
// carries both index projections, so the item and its projections appear
// atomically. Returns ErrDuplicateSlug if the author already used the slug.
func (s *Store) CreatePost(ctx context.Context, data PostData, author string) (*Post, error) {
	now := storeNow()
	pk, sk := keys.Post(author, data.Slug)
	gsi1pk, gsi1sk := keys.PostByCreation(author, now)
	gsi2pk, gsi2sk := keys.PostBySlug(author, data.Slug)

	av, err := attributevalue.MarshalMap(postItem{
		PK:        pk,
		SK:        sk,
		GSI1PK:    gsi1pk,
		GSI1SK:    gsi1sk,
		GSI2PK:    gsi2pk,
		GSI2SK:    gsi2sk,
		Title:     data.Title,
		Body:      data.Body,
		Slug:      data.Slug,
		Author:    author,
		CreatedAt: keys.FormatTime(now),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal post item: %w", err)
	}

	if err := s.putIfAbsent(ctx, av); err != nil {
		return nil, translate(err, ErrDuplicateSlug)
	}

	return &Post{
		Title:     data.Title,
		Body:      data.Body,
		Slug:      data.Slug,
		Author:    author,
		CreatedAt: now,
		Comments:  []Comment{},
	}, nil
}

// ListPostsByUser returns all posts by username, oldest first, via GSI1
// (partition USER#username, sort keys prefixed POST#). A user with no posts
// yields an empty slice, not an error.
func (s *Store) ListPostsByUser(ctx context.Context, username string) ([]Post, error) {
	partition, _ := keys.User(username)

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.KeyAnd(
			expression.KeyEqual(expression.Key("GSI1PK"), expression.Value(partition)),
			expression.Key("GSI1SK").BeginsWith(keys.PostPrefix),
		)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	posts := []Post{}
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		IndexName:                 aws.String(s.config.GSI1Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		for _, raw := range page.Items {
			post, err := decodePost(raw)
			if err != nil {
				return nil, err
			}
			posts = append(posts, *post)
		}
	}

	return posts, nil
}

// GetPostWithComments fetches a post and its comments in one GSI2 partition
// query. The post item and comment items interleave under the partition and
// are separated by key prefix, never by position in the result set.
// Returns ErrPostNotFound when the partition is empty or holds no post item
// (the latter happens to comments orphaned by a deleted post).
func (s *Store) GetPostWithComments(ctx context.Context, author, slug string) (*Post, error) {
	partition, _ := keys.PostBySlug(author, slug)

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.KeyEqual(expression.Key("GSI2PK"), expression.Value(partition))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	var post *Post
	comments := []Comment{}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		IndexName:                 aws.String(s.config.GSI2Name),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		for _, raw := range page.Items {
			switch rawKind(raw) {
			case kindPost:
				if post, err = decodePost(raw); err != nil {
					return nil, err
				}
			case kindComment:
				comment, err := decodeComment(raw)
				if err != nil {
					return nil, err
				}
				comments = append(comments, *comment)
			}
		}
	}

	if post == nil {
		return nil, ErrPostNotFound
	}

	post.Comments = comments
	return post, nil
}

// CreateComment appends a comment to the post identified by its
// author-namespaced slug ("author/slug"). Comments are immutable once
// written. The id collision guard exists for completeness; with 128-bit
// random ids ErrDuplicateComment is not expected in practice.
func (s *Store) CreateComment(ctx context.Context, postSlug, author, body string) (*Comment, error) {
	postAuthor, slug, ok := keys.SplitSlug(postSlug)
	if !ok {
		return nil, ErrPostNotFound
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	now := storeNow()
	pk, sk := keys.Comment(id)
	gsi2pk, gsi2sk := keys.CommentByPost(postAuthor, slug, now)

	av, err := attributevalue.MarshalMap(commentItem{
		PK:        pk,
		SK:        sk,
		GSI2PK:    gsi2pk,
		GSI2SK:    gsi2sk,
		UUID:      id,
		Post:      postSlug,
		Author:    author,
		Body:      body,
		CreatedAt: keys.FormatTime(now),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal comment item: %w", err)
	}

	if err := s.putIfAbsent(ctx, av); err != nil {
		return nil, translate(err, ErrDuplicateComment)
	}

	return &Comment{
		UUID:      id,
		Post:      postSlug,
		Author:    author,
		Body:      body,
		CreatedAt: now,
	}, nil
}

// DeletePost removes the primary post item for author and slug. The delete
// is unconditional and idempotent: removing a nonexistent post is not an
// error. Comments are not cascaded; their GSI2 entries remain until a
// data-lifecycle sweep handles them.
func (s *Store) DeletePost(ctx context.Context, author, slug string) error {
	pk, sk := keys.Post(author, slug)

	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.TableName),
		Key:       primaryKey(pk, sk),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return nil
}

// putIfAbsent writes an item, failing with the SDK conditional-check error
// if an item with the same PK and SK already exists. This is the only
// concurrency-control primitive the store uses.
func (s *Store) putIfAbsent(ctx context.Context, item map[string]types.AttributeValue) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("PK")).
			And(expression.AttributeNotExists(expression.Name("SK")))).
		Build()
	if err != nil {
		return fmt.Errorf("build condition: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.config.TableName),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	return err
}

// translate maps a conditional-check failure to the given conflict error and
// wraps anything else as ErrBackendUnavailable, so callers never handle raw
// SDK error types.
func translate(err error, conflict error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return conflict
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

func primaryKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// storeNow returns the current time at the precision the table stores.
// Truncating here keeps returned entities equal to their re-read form.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
