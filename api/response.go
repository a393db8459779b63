package api

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/inkwell/internal/keys"
	"github.com/jacentio/inkwell/store"
)

// fieldErrors maps a payload field to the validation messages for it.
type fieldErrors map[string][]string

type userResponse struct {
	Username  string `json:"username"`
	CreatedAt string `json:"createdAt"`
}

type apiKeyResponse struct {
	APIKey    string `json:"apiKey"`
	ExpiresAt string `json:"expiresAt"`
}

type postResponse struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Slug      string            `json:"slug"`
	Author    string            `json:"author"`
	CreatedAt string            `json:"createdAt"`
	Comments  []commentResponse `json:"comments"`
}

type commentResponse struct {
	UUID      string `json:"uuid"`
	Post      string `json:"post"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
}

func newUserResponse(u *store.User) userResponse {
	return userResponse{
		Username:  u.Username,
		CreatedAt: keys.FormatTime(u.CreatedAt),
	}
}

func newPostResponse(p *store.Post) postResponse {
	comments := make([]commentResponse, 0, len(p.Comments))
	for i := range p.Comments {
		comments = append(comments, newCommentResponse(&p.Comments[i]))
	}
	return postResponse{
		Title:     p.Title,
		Body:      p.Body,
		Slug:      keys.Slug(p.Author, p.Slug),
		Author:    p.Author,
		CreatedAt: keys.FormatTime(p.CreatedAt),
		Comments:  comments,
	}
}

func newCommentResponse(c *store.Comment) commentResponse {
	return commentResponse{
		UUID:      c.UUID,
		Post:      c.Post,
		Author:    c.Author,
		Body:      c.Body,
		CreatedAt: keys.FormatTime(c.CreatedAt),
	}
}

var jsonHeaders = map[string]string{"Content-Type": "application/json"}

func respond(status int, body any) events.APIGatewayProxyResponse {
	encoded, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusInternalServerError,
			Headers:    jsonHeaders,
			Body:       `{"message":"Something went wrong."}`,
		}
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    jsonHeaders,
		Body:       string(encoded),
	}
}

func message(status int, msg string) events.APIGatewayProxyResponse {
	return respond(status, map[string]string{"message": msg})
}

func userError(status int, body any) events.APIGatewayProxyResponse {
	return respond(status, body)
}

func unauthorized() events.APIGatewayProxyResponse {
	return respond(http.StatusUnauthorized, map[string]string{"error": "Unauthorized."})
}

func notFound(msg string) events.APIGatewayProxyResponse {
	return message(http.StatusNotFound, msg)
}

func serverError() events.APIGatewayProxyResponse {
	return message(http.StatusInternalServerError, "Something went wrong.")
}
