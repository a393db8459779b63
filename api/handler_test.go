package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/inkwell/api"
	"github.com/jacentio/inkwell/internal/dynamofake"
	"github.com/jacentio/inkwell/store"
)

func newTestHandler(t *testing.T) *api.Handler {
	t.Helper()
	db := dynamofake.New()
	db.CreateTable("blog", dynamofake.Schema{
		HashKey: "PK",
		SortKey: "SK",
		Indexes: map[string]dynamofake.Index{
			"GSI1": {HashKey: "GSI1PK", SortKey: "GSI1SK"},
			"GSI2": {HashKey: "GSI2PK", SortKey: "GSI2SK"},
		},
	})
	return api.NewHandler(store.New(db, store.DefaultConfig()), nil)
}

func jsonRequest(body any) events.APIGatewayProxyRequest {
	encoded, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return events.APIGatewayProxyRequest{Body: string(encoded)}
}

func credentials(username, password string) events.APIGatewayProxyRequest {
	return jsonRequest(map[string]string{"username": username, "password": password})
}

func register(t *testing.T, h *api.Handler, username, password string) {
	t.Helper()
	resp, err := h.Register(context.Background(), credentials(username, password))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
}

func login(t *testing.T, h *api.Handler, username, password string) string {
	t.Helper()
	resp, err := h.Login(context.Background(), credentials(username, password))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	var body struct {
		APIKey    string `json:"apiKey"`
		ExpiresAt string `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	require.NotEmpty(t, body.APIKey)
	return body.APIKey
}

func fields(t *testing.T, body string) map[string][]string {
	t.Helper()
	out := map[string][]string{}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestRegister(t *testing.T) {
	h := newTestHandler(t)

	resp, err := h.Register(context.Background(), credentials("alice1", "secret1"))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])

	var body struct {
		Username  string `json:"username"`
		CreatedAt string `json:"createdAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "alice1", body.Username)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, body.CreatedAt)
	assert.NotContains(t, resp.Body, "password")
}

func TestRegisterDuplicate(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")

	resp, err := h.Register(context.Background(), credentials("alice1", "other-secret"))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, []string{"Already taken."}, fields(t, resp.Body)["username"])
}

func TestRegisterValidation(t *testing.T) {
	h := newTestHandler(t)

	resp, err := h.Register(context.Background(), credentials("abc", "pw"))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	fe := fields(t, resp.Body)
	assert.Contains(t, fe, "username")
	assert.Contains(t, fe, "password")
}

func TestRegisterBadJSON(t *testing.T) {
	h := newTestHandler(t)

	resp, err := h.Register(context.Background(), events.APIGatewayProxyRequest{Body: "{not json"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestLoginIssuesAPIKey(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")

	key := login(t, h, "alice1", "secret1")
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), key)

	resp, err := h.Me(context.Background(), events.APIGatewayProxyRequest{
		Headers: map[string]string{"Authorization": key},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `"username":"alice1"`)
}

func TestLoginRejections(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")

	unknown, err := h.Login(context.Background(), credentials("nobody1", "secret1"))
	require.NoError(t, err)
	wrong, err := h.Login(context.Background(), credentials("alice1", "not-the-password"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	// An attacker must not be able to tell the two cases apart.
	assert.Equal(t, unknown.Body, wrong.Body)
}

func TestLoginRotationRevokesOldKey(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")

	old := login(t, h, "alice1", "secret1")
	fresh := login(t, h, "alice1", "secret1")
	require.NotEqual(t, old, fresh)

	resp, err := h.Me(context.Background(), events.APIGatewayProxyRequest{
		Headers: map[string]string{"Authorization": old},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = h.Me(context.Background(), events.APIGatewayProxyRequest{
		Headers: map[string]string{"Authorization": fresh},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMeUnauthorized(t *testing.T) {
	h := newTestHandler(t)

	for name, req := range map[string]events.APIGatewayProxyRequest{
		"no header":   {},
		"empty token": {Headers: map[string]string{"Authorization": ""}},
		"bogus token": {Headers: map[string]string{"Authorization": "ffffffffffffffffffffffffffffffff"}},
	} {
		resp, err := h.Me(context.Background(), req)
		require.NoError(t, err, name)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, name)
	}
}

func postPayload(slug string) map[string]string {
	return map[string]string{
		"title": "Hello World!!",
		"body":  "This is a post body that is comfortably over thirty characters long.",
		"slug":  slug,
	}
}

func authedRequest(key string, body any) events.APIGatewayProxyRequest {
	req := jsonRequest(body)
	req.Headers = map[string]string{"Authorization": key}
	return req
}

func TestCreatePostAndGet(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	key := login(t, h, "alice1", "secret1")

	resp, err := h.CreatePost(context.Background(), authedRequest(key, postPayload("hello-world")))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	assert.Contains(t, resp.Body, `"slug":"alice1/hello-world"`)

	got, err := h.GetPost(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"username": "alice1", "post": "hello-world"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, got.StatusCode)

	var post struct {
		Title    string            `json:"title"`
		Slug     string            `json:"slug"`
		Author   string            `json:"author"`
		Comments []json.RawMessage `json:"comments"`
	}
	require.NoError(t, json.Unmarshal([]byte(got.Body), &post))
	assert.Equal(t, "Hello World!!", post.Title)
	assert.Equal(t, "alice1/hello-world", post.Slug)
	assert.Equal(t, "alice1", post.Author)
	assert.NotNil(t, post.Comments)
	assert.Empty(t, post.Comments)
}

func TestCreatePostRequiresAuth(t *testing.T) {
	h := newTestHandler(t)

	resp, err := h.CreatePost(context.Background(), jsonRequest(postPayload("hello-world")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreatePostDuplicateSlug(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	key := login(t, h, "alice1", "secret1")

	first, err := h.CreatePost(context.Background(), authedRequest(key, postPayload("hello-world")))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, first.StatusCode)

	second, err := h.CreatePost(context.Background(), authedRequest(key, postPayload("hello-world")))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, second.StatusCode)
	assert.Contains(t, fields(t, second.Body), "slug")
}

func TestCreatePostValidation(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	key := login(t, h, "alice1", "secret1")

	resp, err := h.CreatePost(context.Background(), authedRequest(key, map[string]string{
		"title": "tiny",
		"body":  "too short",
		"slug":  "Not A Slug",
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	fe := fields(t, resp.Body)
	assert.Contains(t, fe, "title")
	assert.Contains(t, fe, "body")
	assert.Contains(t, fe, "slug")
}

func TestListUserPosts(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	key := login(t, h, "alice1", "secret1")

	missing, err := h.ListUserPosts(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"username": "nobody1"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	empty, err := h.ListUserPosts(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"username": "alice1"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, empty.StatusCode)
	assert.JSONEq(t, "[]", empty.Body)

	for i := 0; i < 3; i++ {
		resp, err := h.CreatePost(context.Background(), authedRequest(key, postPayload(fmt.Sprintf("post-%d", i))))
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
		time.Sleep(2 * time.Millisecond)
	}

	listed, err := h.ListUserPosts(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"username": "alice1"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listed.StatusCode)

	var posts []struct {
		Slug string `json:"slug"`
	}
	require.NoError(t, json.Unmarshal([]byte(listed.Body), &posts))
	require.Len(t, posts, 3)
	for i, p := range posts {
		assert.Equal(t, fmt.Sprintf("alice1/post-%d", i), p.Slug)
	}
}

func TestDeletePost(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	key := login(t, h, "alice1", "secret1")

	created, err := h.CreatePost(context.Background(), authedRequest(key, postPayload("hello-world")))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, created.StatusCode)

	deleted, err := h.DeletePost(context.Background(), events.APIGatewayProxyRequest{
		Headers:        map[string]string{"Authorization": key},
		PathParameters: map[string]string{"username": "alice1", "post": "hello-world"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, deleted.StatusCode)

	gone, err := h.GetPost(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"username": "alice1", "post": "hello-world"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestDeletePostNotOwned(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	register(t, h, "bobby1", "secret1")
	aliceKey := login(t, h, "alice1", "secret1")
	bobbyKey := login(t, h, "bobby1", "secret1")

	created, err := h.CreatePost(context.Background(), authedRequest(aliceKey, postPayload("hello-world")))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, created.StatusCode)

	resp, err := h.DeletePost(context.Background(), events.APIGatewayProxyRequest{
		Headers:        map[string]string{"Authorization": bobbyKey},
		PathParameters: map[string]string{"username": "alice1", "post": "hello-world"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The post itself is untouched.
	still, err := h.GetPost(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"username": "alice1", "post": "hello-world"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, still.StatusCode)
}

func TestCreateComment(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	register(t, h, "bobby1", "secret1")
	aliceKey := login(t, h, "alice1", "secret1")
	bobbyKey := login(t, h, "bobby1", "secret1")

	created, err := h.CreatePost(context.Background(), authedRequest(aliceKey, postPayload("hello-world")))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, created.StatusCode)

	comment := authedRequest(bobbyKey, map[string]string{"body": "Nice post, thanks!"})
	comment.PathParameters = map[string]string{"username": "alice1", "post": "hello-world"}

	resp, err := h.CreateComment(context.Background(), comment)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	var body struct {
		UUID   string `json:"uuid"`
		Post   string `json:"post"`
		Author string `json:"author"`
	}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Regexp(t, `^[0-9a-f]{32}$`, body.UUID)
	assert.Equal(t, "alice1/hello-world", body.Post)
	assert.Equal(t, "bobby1", body.Author)

	got, err := h.GetPost(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"username": "alice1", "post": "hello-world"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Contains(t, got.Body, "Nice post, thanks!")
}

func TestCreateCommentMissingPost(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "bobby1", "secret1")
	key := login(t, h, "bobby1", "secret1")

	comment := authedRequest(key, map[string]string{"body": "Nice post, thanks!"})
	comment.PathParameters = map[string]string{"username": "alice1", "post": "hello-world"}

	resp, err := h.CreateComment(context.Background(), comment)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthorize(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice1", "secret1")
	key := login(t, h, "alice1", "secret1")

	const arn = "arn:aws:execute-api:eu-west-1:123456789012:api/prod/GET/me"

	allow, err := h.Authorize(context.Background(), events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: key,
		MethodArn:          arn,
	})
	require.NoError(t, err)
	require.Len(t, allow.PolicyDocument.Statement, 1)
	assert.Equal(t, "Allow", allow.PolicyDocument.Statement[0].Effect)
	assert.Equal(t, []string{arn}, allow.PolicyDocument.Statement[0].Resource)

	deny, err := h.Authorize(context.Background(), events.APIGatewayCustomAuthorizerRequest{
		AuthorizationToken: "ffffffffffffffffffffffffffffffff",
		MethodArn:          arn,
	})
	require.NoError(t, err)
	require.Len(t, deny.PolicyDocument.Statement, 1)
	assert.Equal(t, "Deny", deny.PolicyDocument.Statement[0].Effect)
}
