package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wedding-site-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func keySchema(pk, sk string) []types.KeySchemaElement {
	return []types.KeySchemaElement{
		{AttributeName: aws.String(pk), KeyType: types.KeyTypeHash},
		{AttributeName: aws.String(sk), KeyType: types.KeyTypeRange},
	}
}

// SiteTableInput describes the single table with its two sparse indexes.
func SiteTableInput(tableName string) *dynamodb.CreateTableInput {
	attrs := []string{
		model.AttrPK, model.AttrSK,
		model.AttrGSI1PK, model.AttrGSI1SK,
		model.AttrGSI2PK, model.AttrGSI2SK,
	}
	defs := make([]types.AttributeDefinition, 0, len(attrs))
	for _, a := range attrs {
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(a),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}

	return &dynamodb.CreateTableInput{
		TableName:            aws.String(tableName),
		BillingMode:          types.BillingModePayPerRequest,
		AttributeDefinitions: defs,
		KeySchema:            keySchema(model.AttrPK, model.AttrSK),
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName:  aws.String(model.BySlugIndex),
				KeySchema:  keySchema(model.AttrGSI1PK, model.AttrGSI1SK),
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
			{
				IndexName:  aws.String(model.ByStatusIndex),
				KeySchema:  keySchema(model.AttrGSI2PK, model.AttrGSI2SK),
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	}
}

// EnsureTable creates the site table when it is missing and waits until it is active.
func (c *DynamoDBClient) EnsureTable(ctx context.Context, tableName string, wait time.Duration) (bool, error) {
	_, err := c.svc.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err == nil {
		return false, nil
	}
	var missing *types.ResourceNotFoundException
	if !errors.As(err, &missing) {
		return false, fmt.Errorf("describe table %s: %w", tableName, err)
	}

	if _, err := c.svc.CreateTable(ctx, SiteTableInput(tableName)); err != nil {
		return false, fmt.Errorf("create table %s: %w", tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.svc)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, wait); err != nil {
		return true, fmt.Errorf("wait for table %s: %w", tableName, err)
	}
	return true, nil
}

// ListTables returns all table names in the account/endpoint.
func (c *DynamoDBClient) ListTables(ctx context.Context) ([]string, error) {
	var last *string
	var names []string

	for {
		out, err := c.svc.ListTables(ctx, &dynamodb.ListTablesInput{
			ExclusiveStartTableName: last,
			Limit:                   aws.Int32(100),
		})
		if err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}

		names = append(names, out.TableNames...)
		if out.LastEvaluatedTableName == nil {
			break
		}
		last = out.LastEvaluatedTableName
	}

	return names, nil
}

func (c *DynamoDBClient) DescribeTable(ctx context.Context, tableName string) (*types.TableDescription, error) {
	out, err := c.svc.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", tableName, err)
	}
	return out.Table, nil
}

// ScanPage reads one page of raw records, for operator inspection only.
func (c *DynamoDBClient) ScanPage(ctx context.Context, tableName string, limit int32, startKey map[string]types.AttributeValue) ([]model.Item, map[string]types.AttributeValue, error) {
	if limit < 1 || limit > 200 {
		limit = 25
	}

	input := &dynamodb.ScanInput{
		TableName: aws.String(tableName),
		Limit:     aws.Int32(limit),
	}
	if startKey != nil {
		input.ExclusiveStartKey = startKey
	}

	out, err := c.svc.Scan(ctx, input)
	if err != nil {
		return nil, nil, fmt.Errorf("scan table %s: %w", tableName, err)
	}

	items := make([]model.Item, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, nil, fmt.Errorf("decode items: %w", err)
	}
	return items, out.LastEvaluatedKey, nil
}
