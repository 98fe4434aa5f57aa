package database

import (
	"testing"

	"wedding-site-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpressionCondition(t *testing.T) {
	expr := newExpression()
	cond, err := expr.condition(Condition{
		Presence:      MustExist,
		VersionEquals: int64Ptr(3),
		PayloadEquals: map[string]any{model.FieldReservedQuantity: int64(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, "attribute_exists(#n0) AND #n1 = :v0 AND #n2.#n3 = :v1", cond)
	assert.Equal(t, map[string]string{
		"#n0": model.AttrPK,
		"#n1": model.AttrVersion,
		"#n2": model.AttrPayload,
		"#n3": model.FieldReservedQuantity,
	}, expr.attrNames())
	assert.Equal(t, &types.AttributeValueMemberN{Value: "3"}, expr.attrValues()[":v0"])

	empty := newExpression()
	cond, err = empty.condition(Condition{})
	require.NoError(t, err)
	assert.Empty(t, cond)
	assert.Nil(t, empty.attrNames())
	assert.Nil(t, empty.attrValues())
}

func TestExpressionUpdate(t *testing.T) {
	expr := newExpression()
	update, err := expr.update(Update{
		Key:              model.KeyFor("t1", model.KindGift, "g1"),
		SetPayload:       map[string]any{model.FieldReservedQuantity: int64(4)},
		SetAttrs:         map[string]string{model.AttrUpdatedAt: "now"},
		IncrementVersion: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "SET #n0.#n1 = :v0, #n2 = :v1, #n3 = #n3 + :v2", update)

	_, err = newExpression().update(Update{})
	assert.Error(t, err)
}

func TestExpressionKeyCondition(t *testing.T) {
	expr := newExpression()
	assert.Equal(t, "#n0 = :v0 AND begins_with(#n1, :v1)",
		expr.keyCondition(model.AttrPK, model.AttrSK, "TENANT#t1", "GIFT#"))

	expr = newExpression()
	assert.Equal(t, "#n0 = :v0", expr.keyCondition(model.AttrGSI1PK, model.AttrGSI1SK, "SLUG#a", ""))
}
