package database

import (
	"fmt"
	"sort"
	"strings"

	"wedding-site-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// expression accumulates placeholder names and values shared by the
// condition, update and key expressions of one request.
type expression struct {
	names   map[string]string
	aliases map[string]string
	values  map[string]types.AttributeValue
}

func newExpression() *expression {
	return &expression{
		names:   map[string]string{},
		aliases: map[string]string{},
		values:  map[string]types.AttributeValue{},
	}
}

func (e *expression) name(attr string) string {
	if alias, ok := e.aliases[attr]; ok {
		return alias
	}
	alias := fmt.Sprintf("#n%d", len(e.aliases))
	e.aliases[attr] = alias
	e.names[alias] = attr
	return alias
}

func (e *expression) value(v types.AttributeValue) string {
	placeholder := fmt.Sprintf(":v%d", len(e.values))
	e.values[placeholder] = v
	return placeholder
}

func (e *expression) marshalValue(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal expression value: %w", err)
	}
	return e.value(av), nil
}

func (e *expression) payloadPath(field string) string {
	return e.name(model.AttrPayload) + "." + e.name(field)
}

func (e *expression) keyCondition(pkAttr, skAttr, pk, skPrefix string) string {
	expr := fmt.Sprintf("%s = %s", e.name(pkAttr), e.value(attrString(pk)))
	if skPrefix != "" {
		expr += fmt.Sprintf(" AND begins_with(%s, %s)", e.name(skAttr), e.value(attrString(skPrefix)))
	}
	return expr
}

// condition renders c, returning "" when it imposes nothing.
func (e *expression) condition(c Condition) (string, error) {
	var parts []string

	switch c.Presence {
	case MustExist:
		parts = append(parts, fmt.Sprintf("attribute_exists(%s)", e.name(model.AttrPK)))
	case MustNotExist:
		parts = append(parts, fmt.Sprintf("attribute_not_exists(%s)", e.name(model.AttrPK)))
	}

	if c.VersionEquals != nil {
		v, err := e.marshalValue(*c.VersionEquals)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s = %s", e.name(model.AttrVersion), v))
	}

	for _, field := range sortedKeys(c.PayloadEquals) {
		v, err := e.marshalValue(c.PayloadEquals[field])
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("%s = %s", e.payloadPath(field), v))
	}

	return strings.Join(parts, " AND "), nil
}

func (e *expression) update(u Update) (string, error) {
	var sets []string

	for _, field := range sortedKeys(u.SetPayload) {
		v, err := e.marshalValue(u.SetPayload[field])
		if err != nil {
			return "", err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", e.payloadPath(field), v))
	}

	for _, attr := range sortedKeys(u.SetAttrs) {
		sets = append(sets, fmt.Sprintf("%s = %s", e.name(attr), e.value(attrString(u.SetAttrs[attr]))))
	}

	if u.IncrementVersion {
		version := e.name(model.AttrVersion)
		one, err := e.marshalValue(1)
		if err != nil {
			return "", err
		}
		sets = append(sets, fmt.Sprintf("%s = %s + %s", version, version, one))
	}

	if len(sets) == 0 {
		return "", fmt.Errorf("update of %s/%s sets nothing", u.Key.PK, u.Key.SK)
	}
	return "SET " + strings.Join(sets, ", "), nil
}

func (e *expression) attrNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expression) attrValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
