package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wedding-site-backend/internal/logger"
	"wedding-site-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const batchWriteSize = 25

func (t *DynamoTable) BatchDelete(ctx context.Context, keys []model.Key) error {
	if len(keys) == 0 {
		return nil
	}

	seen := make(map[model.Key]bool, len(keys))
	writeRequests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		writeRequests = append(writeRequests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: keyAttributes(key)},
		})
	}

	for i := 0; i < len(writeRequests); i += batchWriteSize {
		end := min(i+batchWriteSize, len(writeRequests))
		requests := map[string][]types.WriteRequest{
			t.tableName: writeRequests[i:end],
		}

		if err := t.batchWriteWithRetry(ctx, requests); err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
	}

	return nil
}

// batchUnprocessedRetries bounds how often unprocessed items are resent.
const batchUnprocessedRetries = 2

var errUnprocessed = errors.New("batch write left unprocessed items")

func (t *DynamoTable) batchWriteWithRetry(ctx context.Context, requests map[string][]types.WriteRequest) error {
	pending := requests
	var attempt int

	operation := func() error {
		attempt++
		result, err := t.client.svc.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return backoff.Permanent(classifyError(fmt.Sprintf("batch write (attempt %d)", attempt), err))
		}
		if len(result.UnprocessedItems) == 0 {
			pending = nil
			return nil
		}
		pending = result.UnprocessedItems
		return errUnprocessed
	}
	notify := func(err error, next time.Duration) {
		logger.WarnCtx(ctx, "Batch write left unprocessed items, retrying",
			zap.String("table", t.tableName),
			zap.Int("attempt", attempt),
			zap.Int("unprocessed", countRequests(pending)),
			zap.Duration("next_retry_in", next))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), batchUnprocessedRetries), ctx)
	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errUnprocessed) {
		return err
	}

	// Unprocessed deletes whose items are already gone count as done.
	remaining := 0
	for _, reqs := range pending {
		for _, req := range reqs {
			if req.DeleteRequest == nil {
				remaining++
				continue
			}
			res, err := t.client.svc.GetItem(ctx, &dynamodb.GetItemInput{
				TableName:      aws.String(t.tableName),
				Key:            req.DeleteRequest.Key,
				ConsistentRead: aws.Bool(true),
			})
			if err != nil || len(res.Item) > 0 {
				remaining++
			}
		}
	}

	if remaining > 0 {
		return fmt.Errorf("%w: %d items unprocessed after %d attempts", ErrTransient, remaining, attempt)
	}
	return nil
}

func countRequests(requests map[string][]types.WriteRequest) int {
	n := 0
	for _, reqs := range requests {
		n += len(reqs)
	}
	return n
}
