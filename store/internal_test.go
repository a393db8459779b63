package store

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.TableName != "blog" {
		t.Errorf("expected TableName 'blog', got %q", cfg.TableName)
	}
	if cfg.GSI1Name != "GSI1" {
		t.Errorf("expected GSI1Name 'GSI1', got %q", cfg.GSI1Name)
	}
	if cfg.GSI2Name != "GSI2" {
		t.Errorf("expected GSI2Name 'GSI2', got %q", cfg.GSI2Name)
	}
}

func TestConfigValidateFillsDefaults(t *testing.T) {
	cfg := Config{TableName: "blog-staging"}
	cfg.validate()

	if cfg.TableName != "blog-staging" {
		t.Errorf("expected TableName to be preserved, got %q", cfg.TableName)
	}
	if cfg.GSI1Name != "GSI1" || cfg.GSI2Name != "GSI2" {
		t.Errorf("expected index defaults, got %q and %q", cfg.GSI1Name, cfg.GSI2Name)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		pk       string
		sk       string
		expected itemKind
	}{
		{"user", "USER#alice1", "META#alice1", kindUser},
		{"post", "USER#alice1", "POST#alice1/hello-world", kindPost},
		{"comment", "COMMENT#abc", "COMMENT#abc", kindComment},
		{"user pk with unknown sk", "USER#alice1", "OTHER#x", kindUnknown},
		{"empty", "", "", kindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := kindOf(tt.pk, tt.sk); got != tt.expected {
				t.Errorf("kindOf(%q, %q) = %v, expected %v", tt.pk, tt.sk, got, tt.expected)
			}
		})
	}
}

func TestRawKind(t *testing.T) {
	raw := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "COMMENT#abc"},
		"SK": &types.AttributeValueMemberS{Value: "COMMENT#abc"},
	}
	if got := rawKind(raw); got != kindComment {
		t.Errorf("expected kindComment, got %v", got)
	}

	if got := rawKind(map[string]types.AttributeValue{}); got != kindUnknown {
		t.Errorf("expected kindUnknown for missing keys, got %v", got)
	}

	// A numeric PK is not a valid key shape.
	raw = map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberN{Value: "1"},
		"SK": &types.AttributeValueMemberS{Value: "META#x"},
	}
	if got := rawKind(raw); got != kindUnknown {
		t.Errorf("expected kindUnknown for non-string PK, got %v", got)
	}
}

func TestDecodeUser(t *testing.T) {
	raw := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: "USER#alice1"},
		"SK":             &types.AttributeValueMemberS{Value: "META#alice1"},
		"username":       &types.AttributeValueMemberS{Value: "alice1"},
		"hashedPassword": &types.AttributeValueMemberS{Value: "digest.salt"},
		"createdAt":      &types.AttributeValueMemberS{Value: "2024-03-01T12:00:00.000Z"},
	}

	user, err := decodeUser(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Username != "alice1" {
		t.Errorf("expected username 'alice1', got %q", user.Username)
	}
	if user.APIKey != nil {
		t.Error("expected no api-key binding without apiKey attribute")
	}

	raw["apiKey"] = &types.AttributeValueMemberS{Value: "deadbeef"}
	raw["apiKeyExpiresAt"] = &types.AttributeValueMemberS{Value: "2024-03-31T12:00:00.000Z"}

	user, err = decodeUser(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.APIKey == nil {
		t.Fatal("expected an api-key binding")
	}
	if user.APIKey.Key != "deadbeef" {
		t.Errorf("expected key 'deadbeef', got %q", user.APIKey.Key)
	}
}

func TestDecodeUserBadTimestamp(t *testing.T) {
	raw := map[string]types.AttributeValue{
		"username":  &types.AttributeValueMemberS{Value: "alice1"},
		"createdAt": &types.AttributeValueMemberS{Value: "not-a-time"},
	}
	if _, err := decodeUser(raw); err == nil {
		t.Error("expected an error for a bad timestamp")
	}
}

func TestTranslate(t *testing.T) {
	condErr := &types.ConditionalCheckFailedException{
		Message: aws.String("The conditional request failed"),
	}
	if got := translate(condErr, ErrDuplicateUser); !errors.Is(got, ErrDuplicateUser) {
		t.Errorf("expected ErrDuplicateUser, got %v", got)
	}

	backendErr := errors.New("connection reset")
	got := translate(backendErr, ErrDuplicateUser)
	if !errors.Is(got, ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable wrap, got %v", got)
	}
	if errors.Is(got, ErrDuplicateUser) {
		t.Error("expected the conflict error not to leak into backend failures")
	}
	if !errors.Is(got, backendErr) {
		t.Error("expected the original error to remain in the chain")
	}
}
