// Package api exposes the blog operations as AWS Lambda handlers behind
// API Gateway. The handlers are thin: decode and validate the payload, call
// the store, map the typed errors onto HTTP statuses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/inkwell/auth"
	"github.com/jacentio/inkwell/internal/keys"
	"github.com/jacentio/inkwell/store"
)

// Handler holds the per-process dependencies shared by all routes.
type Handler struct {
	store    *store.Store
	logger   *slog.Logger
	validate *payloadValidator
}

// NewHandler creates a new Handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:    s,
		logger:   logger,
		validate: newPayloadValidator(),
	}
}

// Register handles POST /register.
func (h *Handler) Register(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var payload credentialsPayload
	if resp, ok := h.decode(req.Body, &payload); !ok {
		return resp, nil
	}

	user, err := h.store.CreateUser(ctx, payload.Username, payload.Password)
	if errors.Is(err, store.ErrDuplicateUser) {
		return userError(http.StatusUnprocessableEntity, fieldErrors{
			"username": {"Already taken."},
		}), nil
	}
	if err != nil {
		h.logger.Error("create user failed", "username", payload.Username, "error", err)
		return serverError(), nil
	}

	return respond(http.StatusCreated, newUserResponse(user)), nil
}

// Login handles POST /login. A successful login issues a fresh API key,
// which also revokes any key issued before it.
func (h *Handler) Login(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var payload credentialsPayload
	if resp, ok := h.decode(req.Body, &payload); !ok {
		return resp, nil
	}

	user, err := h.store.GetUser(ctx, payload.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		// Same response as a wrong password: do not reveal which one it was.
		return unauthorized(), nil
	}
	if err != nil {
		h.logger.Error("load user failed", "username", payload.Username, "error", err)
		return serverError(), nil
	}

	ok, err := auth.VerifyPassword(user.HashedPassword, payload.Password)
	if err != nil {
		h.logger.Error("verify password failed", "username", payload.Username, "error", err)
		return serverError(), nil
	}
	if !ok {
		return unauthorized(), nil
	}

	binding, err := h.store.IssueAPIKey(ctx, user)
	if err != nil {
		h.logger.Error("issue api key failed", "username", payload.Username, "error", err)
		return serverError(), nil
	}

	return respond(http.StatusCreated, apiKeyResponse{
		APIKey:    binding.Key,
		ExpiresAt: keys.FormatTime(binding.ExpiresAt),
	}), nil
}

// Me handles GET /me.
func (h *Handler) Me(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, resp, ok := h.caller(ctx, req)
	if !ok {
		return resp, nil
	}
	return respond(http.StatusOK, newUserResponse(user)), nil
}

// CreatePost handles POST /posts.
func (h *Handler) CreatePost(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, resp, ok := h.caller(ctx, req)
	if !ok {
		return resp, nil
	}

	var payload createPostPayload
	if resp, ok := h.decode(req.Body, &payload); !ok {
		return resp, nil
	}

	post, err := h.store.CreatePost(ctx, store.PostData{
		Title: payload.Title,
		Body:  payload.Body,
		Slug:  payload.Slug,
	}, user.Username)
	if errors.Is(err, store.ErrDuplicateSlug) {
		return userError(http.StatusUnprocessableEntity, fieldErrors{
			"slug": {"Already exists for this user."},
		}), nil
	}
	if err != nil {
		h.logger.Error("create post failed", "author", user.Username, "slug", payload.Slug, "error", err)
		return serverError(), nil
	}

	return respond(http.StatusCreated, newPostResponse(post)), nil
}

// ListUserPosts handles GET /users/{username}/posts.
func (h *Handler) ListUserPosts(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	username, ok := req.PathParameters["username"]
	if !ok {
		h.logger.Error("username missing from path parameters")
		return serverError(), nil
	}

	if _, err := h.store.GetUser(ctx, username); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return notFound("User does not exist."), nil
		}
		h.logger.Error("load user failed", "username", username, "error", err)
		return serverError(), nil
	}

	posts, err := h.store.ListPostsByUser(ctx, username)
	if err != nil {
		h.logger.Error("list posts failed", "username", username, "error", err)
		return serverError(), nil
	}

	out := make([]postResponse, 0, len(posts))
	for i := range posts {
		out = append(out, newPostResponse(&posts[i]))
	}
	return respond(http.StatusOK, out), nil
}

// GetPost handles GET /users/{username}/posts/{post}.
func (h *Handler) GetPost(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	username, slug, resp, ok := postPath(req)
	if !ok {
		h.logger.Error("post path parameters missing", "params", req.PathParameters)
		return resp, nil
	}

	post, err := h.store.GetPostWithComments(ctx, username, slug)
	if errors.Is(err, store.ErrPostNotFound) {
		return notFound("Post does not exist."), nil
	}
	if err != nil {
		h.logger.Error("fetch post failed", "author", username, "slug", slug, "error", err)
		return serverError(), nil
	}

	return respond(http.StatusOK, newPostResponse(post)), nil
}

// DeletePost handles DELETE /users/{username}/posts/{post}. Only the author
// can delete a post; the post is looked up under the caller's own namespace,
// so a slug belonging to someone else reads as not-owned.
func (h *Handler) DeletePost(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, resp, ok := h.caller(ctx, req)
	if !ok {
		return resp, nil
	}

	slug, ok := req.PathParameters["post"]
	if !ok {
		h.logger.Error("post slug missing from path parameters")
		return serverError(), nil
	}

	if _, err := h.store.GetPostWithComments(ctx, user.Username, slug); err != nil {
		if errors.Is(err, store.ErrPostNotFound) {
			return userError(http.StatusUnauthorized, map[string]string{
				"error": "User does not own the post.",
			}), nil
		}
		h.logger.Error("fetch post failed", "author", user.Username, "slug", slug, "error", err)
		return serverError(), nil
	}

	if err := h.store.DeletePost(ctx, user.Username, slug); err != nil {
		h.logger.Error("delete post failed", "author", user.Username, "slug", slug, "error", err)
		return serverError(), nil
	}

	return message(http.StatusOK, "Post has been deleted."), nil
}

// CreateComment handles POST /users/{username}/posts/{post}/comments.
func (h *Handler) CreateComment(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, resp, ok := h.caller(ctx, req)
	if !ok {
		return resp, nil
	}

	username, slug, resp, ok := postPath(req)
	if !ok {
		h.logger.Error("post path parameters missing", "params", req.PathParameters)
		return resp, nil
	}

	var payload createCommentPayload
	if resp, ok := h.decode(req.Body, &payload); !ok {
		return resp, nil
	}

	// Comments attach to existing posts only.
	if _, err := h.store.GetPostWithComments(ctx, username, slug); err != nil {
		if errors.Is(err, store.ErrPostNotFound) {
			return notFound("Post does not exist."), nil
		}
		h.logger.Error("fetch post failed", "author", username, "slug", slug, "error", err)
		return serverError(), nil
	}

	comment, err := h.store.CreateComment(ctx, keys.Slug(username, slug), user.Username, payload.Body)
	if err != nil {
		h.logger.Error("create comment failed", "post", keys.Slug(username, slug), "error", err)
		return serverError(), nil
	}

	return respond(http.StatusCreated, newCommentResponse(comment)), nil
}

// Authorize is the API Gateway token authorizer. Unknown, expired and
// malformed keys all deny alike.
func (h *Handler) Authorize(ctx context.Context, event events.APIGatewayCustomAuthorizerRequest) (events.APIGatewayCustomAuthorizerResponse, error) {
	valid, err := h.store.IsAPIKeyValid(ctx, event.AuthorizationToken)
	if err != nil {
		h.logger.Error("api key check failed", "error", err)
		return policy("Deny", event.MethodArn), nil
	}
	if !valid {
		return policy("Deny", event.MethodArn), nil
	}
	return policy("Allow", event.MethodArn), nil
}

func policy(effect, arn string) events.APIGatewayCustomAuthorizerResponse {
	return events.APIGatewayCustomAuthorizerResponse{
		PrincipalID: "user",
		PolicyDocument: events.APIGatewayCustomAuthorizerPolicy{
			Version: "2012-10-17",
			Statement: []events.IAMPolicyStatement{
				{
					Action:   []string{"execute-api:Invoke"},
					Effect:   effect,
					Resource: []string{arn},
				},
			},
		},
	}
}

// caller resolves the Authorization header to a user. Missing, unknown and
// expired keys all produce the same 401 response.
func (h *Handler) caller(ctx context.Context, req events.APIGatewayProxyRequest) (*store.User, events.APIGatewayProxyResponse, bool) {
	token, ok := req.Headers["Authorization"]
	if !ok || token == "" {
		return nil, unauthorized(), false
	}

	user, err := h.store.GetUserByAPIKey(ctx, token)
	if errors.Is(err, store.ErrAPIKeyNotFound) {
		return nil, unauthorized(), false
	}
	if err != nil {
		h.logger.Error("resolve api key failed", "error", err)
		return nil, serverError(), false
	}
	if user.APIKey == nil || auth.Expired(user.APIKey.ExpiresAt, time.Now()) {
		return nil, unauthorized(), false
	}

	return user, events.APIGatewayProxyResponse{}, true
}

// decode unmarshals and validates a request body. On failure the second
// return value is false and the first is the 422 response to send.
func (h *Handler) decode(body string, payload any) (events.APIGatewayProxyResponse, bool) {
	if err := json.Unmarshal([]byte(body), payload); err != nil {
		return userError(http.StatusUnprocessableEntity, fieldErrors{
			"payload": {"Must be valid JSON."},
		}), false
	}
	if fe := h.validate.check(payload); fe != nil {
		return userError(http.StatusUnprocessableEntity, fe), false
	}
	return events.APIGatewayProxyResponse{}, true
}

func postPath(req events.APIGatewayProxyRequest) (username, slug string, resp events.APIGatewayProxyResponse, ok bool) {
	username, hasUser := req.PathParameters["username"]
	slug, hasPost := req.PathParameters["post"]
	if !hasUser || !hasPost {
		return "", "", serverError(), false
	}
	return username, slug, events.APIGatewayProxyResponse{}, true
}
