package database

import (
	"context"
	"fmt"

	"wedding-site-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
)

type DynamoDBClient struct {
	svc *dynamodb.Client
}

func NewDynamoDBClient(ctx context.Context, cfg config.DynamoDBConfig) (*DynamoDBClient, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &DynamoDBClient{
		svc: dynamodb.NewFromConfig(awsCfg, clientOpts...),
	}, nil
}

// Database bundles the raw client with the retrying table every service uses.
type Database struct {
	Client *DynamoDBClient
	Table  Table
}

func NewDatabase(ctx context.Context, cfg config.DynamoDBConfig, retry config.RetryConfig, reg prometheus.Registerer) (*Database, error) {
	client, err := NewDynamoDBClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init dynamodb client: %w", err)
	}

	tableName := cfg.TableName
	if tableName == "" {
		tableName = defaultTableName
	}

	return &Database{
		Client: client,
		Table:  NewRetryingTable(NewDynamoTable(client, tableName), retry, reg),
	}, nil
}

// NewMemoryDatabase backs a Database with an in-process table.
func NewMemoryDatabase() *Database {
	return &Database{Table: NewMemoryTable()}
}
