package database

import (
	"context"
	"errors"
	"fmt"

	"wedding-site-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const defaultTableName = model.SiteTable

// DynamoTable implements Table on a single DynamoDB table.
type DynamoTable struct {
	client    *DynamoDBClient
	tableName string
}

func NewDynamoTable(client *DynamoDBClient, tableName string) *DynamoTable {
	return &DynamoTable{client: client, tableName: tableName}
}

func attrString(value string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: value}
}

func keyAttributes(key model.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		model.AttrPK: attrString(key.PK),
		model.AttrSK: attrString(key.SK),
	}
}

func (t *DynamoTable) Get(ctx context.Context, key model.Key) (model.Item, error) {
	res, err := t.client.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.tableName),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.Item{}, classifyError("get item "+t.tableName, err)
	}
	if len(res.Item) == 0 {
		return model.Item{}, ErrNotFound
	}

	var item model.Item
	if err := attributevalue.UnmarshalMap(res.Item, &item); err != nil {
		return model.Item{}, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, nil
}

func (t *DynamoTable) Query(ctx context.Context, q Query) (QueryResult, error) {
	pkAttr, skAttr, err := IndexKeyAttrs(q.Index)
	if err != nil {
		return QueryResult{}, err
	}

	expr := newExpression()
	input := &dynamodb.QueryInput{
		TableName:              aws.String(t.tableName),
		KeyConditionExpression: aws.String(expr.keyCondition(pkAttr, skAttr, q.PartitionKey, q.SortKeyPrefix)),
		ScanIndexForward:       aws.Bool(!q.Descending),
	}
	input.ExpressionAttributeNames = expr.attrNames()
	input.ExpressionAttributeValues = expr.attrValues()

	if q.Index != "" {
		input.IndexName = aws.String(q.Index)
	} else {
		input.ConsistentRead = aws.Bool(true)
	}
	if q.Limit > 0 {
		input.Limit = aws.Int32(int32(q.Limit))
	}
	if len(q.StartKey) > 0 {
		start := make(map[string]types.AttributeValue, len(q.StartKey))
		for k, v := range q.StartKey {
			start[k] = attrString(v)
		}
		input.ExclusiveStartKey = start
	}

	out, err := t.client.svc.Query(ctx, input)
	if err != nil {
		return QueryResult{}, classifyError(fmt.Sprintf("query %s[%s]", t.tableName, q.Index), err)
	}

	items := make([]model.Item, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return QueryResult{}, fmt.Errorf("unmarshal query items: %w", err)
	}

	result := QueryResult{Items: items}
	if len(out.LastEvaluatedKey) > 0 {
		result.LastKey = make(map[string]string, len(out.LastEvaluatedKey))
		for k, v := range out.LastEvaluatedKey {
			s, ok := v.(*types.AttributeValueMemberS)
			if !ok {
				return QueryResult{}, fmt.Errorf("unexpected key attribute type for %s", k)
			}
			result.LastKey[k] = s.Value
		}
	}
	return result, nil
}

func (t *DynamoTable) Write(ctx context.Context, op WriteOp) error {
	if _, err := op.key(); err != nil {
		return err
	}

	item, err := t.transactItem(op)
	if err != nil {
		return err
	}

	switch {
	case item.Put != nil:
		_, err = t.client.svc.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 item.Put.TableName,
			Item:                      item.Put.Item,
			ConditionExpression:       item.Put.ConditionExpression,
			ExpressionAttributeNames:  item.Put.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Put.ExpressionAttributeValues,
		})
		return classifyError("put item "+t.tableName, err)
	case item.Update != nil:
		_, err = t.client.svc.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 item.Update.TableName,
			Key:                       item.Update.Key,
			UpdateExpression:          item.Update.UpdateExpression,
			ConditionExpression:       item.Update.ConditionExpression,
			ExpressionAttributeNames:  item.Update.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Update.ExpressionAttributeValues,
		})
		return classifyError("update item "+t.tableName, err)
	default:
		_, err = t.client.svc.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName:                 item.Delete.TableName,
			Key:                       item.Delete.Key,
			ConditionExpression:       item.Delete.ConditionExpression,
			ExpressionAttributeNames:  item.Delete.ExpressionAttributeNames,
			ExpressionAttributeValues: item.Delete.ExpressionAttributeValues,
		})
		return classifyError("delete item "+t.tableName, err)
	}
}

func (t *DynamoTable) TransactWrite(ctx context.Context, token string, ops []WriteOp) error {
	if err := validateTransaction(ops); err != nil {
		return err
	}

	items := make([]types.TransactWriteItem, 0, len(ops))
	for i, op := range ops {
		item, err := t.transactItem(op)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		items = append(items, item)
	}

	_, err := t.client.svc.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: optionalString(token),
	})
	return classifyError("transact write "+t.tableName, err)
}

func (t *DynamoTable) transactItem(op WriteOp) (types.TransactWriteItem, error) {
	expr := newExpression()
	cond, err := expr.condition(op.Condition)
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	switch {
	case op.Put != nil:
		av, err := attributevalue.MarshalMap(op.Put)
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("marshal item: %w", err)
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                 aws.String(t.tableName),
			Item:                      av,
			ConditionExpression:       optionalString(cond),
			ExpressionAttributeNames:  expr.attrNames(),
			ExpressionAttributeValues: expr.attrValues(),
		}}, nil
	case op.Update != nil:
		update, err := expr.update(*op.Update)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(t.tableName),
			Key:                       keyAttributes(op.Update.Key),
			UpdateExpression:          aws.String(update),
			ConditionExpression:       optionalString(cond),
			ExpressionAttributeNames:  expr.attrNames(),
			ExpressionAttributeValues: expr.attrValues(),
		}}, nil
	case op.Delete != nil:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                 aws.String(t.tableName),
			Key:                       keyAttributes(*op.Delete),
			ConditionExpression:       optionalString(cond),
			ExpressionAttributeNames:  expr.attrNames(),
			ExpressionAttributeValues: expr.attrValues(),
		}}, nil
	}
	return types.TransactWriteItem{}, errors.New("empty write op")
}

// classifyError folds SDK errors into the package's sentinels.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return &ConditionFailedError{Indexes: []int{0}}
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		var failed []int
		transient := false
		for i, reason := range txErr.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed":
				failed = append(failed, i)
			case "TransactionConflict", "ThrottlingError", "ProvisionedThroughputExceeded", "RequestLimitExceeded":
				transient = true
			}
		}
		if len(failed) > 0 {
			return &ConditionFailedError{Indexes: failed}
		}
		if transient {
			return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var (
		throughputErr *types.ProvisionedThroughputExceededException
		limitErr      *types.RequestLimitExceeded
		internalErr   *types.InternalServerError
		conflictErr   *types.TransactionConflictException
		inProgressErr *types.TransactionInProgressException
	)
	if errors.As(err, &throughputErr) || errors.As(err, &limitErr) || errors.As(err, &internalErr) ||
		errors.As(err, &conflictErr) || errors.As(err, &inProgressErr) {
		return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
	}

	var missingTable *types.ResourceNotFoundException
	if errors.As(err, &missingTable) {
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailable", "InternalFailure", "RequestTimeout":
			return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
