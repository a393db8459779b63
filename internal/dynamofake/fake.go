// Package dynamofake is an in-memory stand-in for DynamoDB used in tests.
//
// It implements the narrow client surface the store depends on: key-addressed
// reads and writes, SET-only update expressions, puts conditioned on key
// non-existence, and key-condition queries (equality and begins_with) against
// the base table or a configured secondary index. Anything beyond that is out
// of scope.
package dynamofake

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Index describes a secondary index key pair.
type Index struct {
	HashKey string
	SortKey string
}

// Schema describes a table's primary key and its secondary indexes.
type Schema struct {
	HashKey string
	SortKey string
	Indexes map[string]Index
}

// DB is an in-memory collection of tables. Safe for concurrent use.
type DB struct {
	mu     sync.Mutex
	tables map[string]*table
}

type table struct {
	schema Schema
	items  map[string]map[string]types.AttributeValue
}

// New creates an empty DB.
func New() *DB {
	return &DB{tables: make(map[string]*table)}
}

// CreateTable registers a table with the given schema.
func (db *DB) CreateTable(name string, schema Schema) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables[name] = &table{
		schema: schema,
		items:  make(map[string]map[string]types.AttributeValue),
	}
}

// GetItem returns the item at the primary key, or a nil Item when absent.
func (db *DB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(params.TableName)
	if err != nil {
		return nil, err
	}

	item, ok := t.items[t.keyOf(params.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: clone(item)}, nil
}

// PutItem stores the item. Any condition expression is interpreted as a
// key-non-existence guard, the only condition the store issues.
func (db *DB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(params.TableName)
	if err != nil {
		return nil, err
	}

	key := t.keyOf(params.Item)
	if params.ConditionExpression != nil {
		if _, exists := t.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{
				Message: aws.String("The conditional request failed"),
			}
		}
	}

	t.items[key] = clone(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// UpdateItem applies a SET update expression, creating the item from its key
// attributes when absent (DynamoDB upsert semantics).
func (db *DB) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(params.TableName)
	if err != nil {
		return nil, err
	}

	key := t.keyOf(params.Key)
	item, ok := t.items[key]
	if !ok {
		item = clone(params.Key)
		t.items[key] = item
	}

	assignments, err := parseSetExpression(
		aws.ToString(params.UpdateExpression),
		params.ExpressionAttributeNames,
	)
	if err != nil {
		return nil, err
	}

	for attr, placeholder := range assignments {
		value, ok := params.ExpressionAttributeValues[placeholder]
		if !ok {
			return nil, fmt.Errorf("dynamofake: unbound value placeholder %q", placeholder)
		}
		item[attr] = value
	}

	return &dynamodb.UpdateItemOutput{}, nil
}

// DeleteItem removes the item at the primary key. Deleting a missing item is
// not an error.
func (db *DB) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(params.TableName)
	if err != nil {
		return nil, err
	}

	delete(t.items, t.keyOf(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query evaluates a key condition against the base table or the named index,
// sorted by the index sort key.
func (db *DB) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, err := db.table(params.TableName)
	if err != nil {
		return nil, err
	}

	hashAttr, sortAttr := t.schema.HashKey, t.schema.SortKey
	if params.IndexName != nil {
		index, ok := t.schema.Indexes[*params.IndexName]
		if !ok {
			return nil, fmt.Errorf("dynamofake: unknown index %q", *params.IndexName)
		}
		hashAttr, sortAttr = index.HashKey, index.SortKey
	}

	clauses, err := parseKeyCondition(
		aws.ToString(params.KeyConditionExpression),
		params.ExpressionAttributeNames,
	)
	if err != nil {
		return nil, err
	}

	var matches []map[string]types.AttributeValue
	for _, item := range t.items {
		if matchesAll(item, clauses, params.ExpressionAttributeValues) {
			matches = append(matches, clone(item))
		}
	}

	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	sort.Slice(matches, func(i, j int) bool {
		a, b := stringAttr(matches[i], sortAttr), stringAttr(matches[j], sortAttr)
		if forward {
			return a < b
		}
		return a > b
	})
	_ = hashAttr // hash equality is enforced by the key condition itself

	if params.Limit != nil && int(*params.Limit) < len(matches) {
		matches = matches[:*params.Limit]
	}

	return &dynamodb.QueryOutput{
		Items: matches,
		Count: int32(len(matches)),
	}, nil
}

func (db *DB) table(name *string) (*table, error) {
	t, ok := db.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("table %q not found", aws.ToString(name))),
		}
	}
	return t, nil
}

// keyOf builds the map key identifying an item from its primary key
// attributes, taken from either a key map or a full item.
func (t *table) keyOf(attrs map[string]types.AttributeValue) string {
	pk := stringAttr(attrs, t.schema.HashKey)
	sk := stringAttr(attrs, t.schema.SortKey)
	return pk + "\x00" + sk
}

// clause is one parsed key-condition term.
type clause struct {
	attr        string
	placeholder string
	beginsWith  bool
}

var (
	beginsWithRe = regexp.MustCompile(`^begins_with\s*\(\s*([^,\s]+)\s*,\s*(:\w+)\s*\)$`)
	equalsRe     = regexp.MustCompile(`^([^\s=]+)\s*=\s*(:\w+)$`)
)

// parseKeyCondition handles the two forms the AWS expression builder emits
// for key conditions: equality and begins_with, joined by AND.
func parseKeyCondition(expr string, names map[string]string) ([]clause, error) {
	expr = substituteNames(expr, names)

	var clauses []clause
	for _, part := range strings.Split(expr, " AND ") {
		part = stripParens(strings.TrimSpace(part))

		if m := beginsWithRe.FindStringSubmatch(part); m != nil {
			clauses = append(clauses, clause{attr: m[1], placeholder: m[2], beginsWith: true})
			continue
		}
		if m := equalsRe.FindStringSubmatch(part); m != nil {
			clauses = append(clauses, clause{attr: m[1], placeholder: m[2]})
			continue
		}
		return nil, fmt.Errorf("dynamofake: unsupported key condition clause %q", part)
	}
	return clauses, nil
}

// parseSetExpression parses "SET a = :x, b = :y" into attribute to value
// placeholder assignments.
func parseSetExpression(expr string, names map[string]string) (map[string]string, error) {
	expr = substituteNames(expr, names)

	rest, ok := strings.CutPrefix(strings.TrimSpace(expr), "SET ")
	if !ok {
		return nil, fmt.Errorf("dynamofake: unsupported update expression %q", expr)
	}

	assignments := make(map[string]string)
	for _, part := range strings.Split(rest, ",") {
		m := equalsRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf("dynamofake: unsupported SET clause %q", part)
		}
		assignments[m[1]] = m[2]
	}
	return assignments, nil
}

// substituteNames replaces #placeholders with real attribute names, longest
// placeholder first so "#1" never clobbers part of "#10".
func substituteNames(expr string, names map[string]string) string {
	placeholders := make([]string, 0, len(names))
	for ph := range names {
		placeholders = append(placeholders, ph)
	}
	sort.Slice(placeholders, func(i, j int) bool { return len(placeholders[i]) > len(placeholders[j]) })

	for _, ph := range placeholders {
		expr = strings.ReplaceAll(expr, ph, names[ph])
	}
	return expr
}

// stripParens removes parentheses that wrap the whole string, leaving
// function-call parentheses intact.
func stripParens(s string) string {
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		depth := 0
		wraps := true
		for i, r := range s {
			switch r {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 && i < len(s)-1 {
				wraps = false
				break
			}
		}
		if !wraps {
			return s
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func matchesAll(item map[string]types.AttributeValue, clauses []clause, values map[string]types.AttributeValue) bool {
	for _, c := range clauses {
		want, ok := values[c.placeholder]
		if !ok {
			return false
		}
		wantS, ok := want.(*types.AttributeValueMemberS)
		if !ok {
			return false
		}

		got, ok := item[c.attr].(*types.AttributeValueMemberS)
		if !ok {
			return false
		}

		if c.beginsWith {
			if !strings.HasPrefix(got.Value, wantS.Value) {
				return false
			}
		} else if got.Value != wantS.Value {
			return false
		}
	}
	return true
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	copied := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		copied[k] = v
	}
	return copied
}
