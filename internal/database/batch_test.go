package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"wedding-site-backend/internal/config"
	"wedding-site-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBatchAPI answers BatchWriteItem and GetItem in the DynamoDB JSON
// protocol. Each BatchWriteItem call hands back the last request as
// unprocessed until leaveUnprocessed calls have been made.
type fakeBatchAPI struct {
	mu               sync.Mutex
	leaveUnprocessed int
	batchSizes       []int
	itemStillExists  bool
}

func (f *fakeBatchAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")

	switch {
	case strings.HasSuffix(r.Header.Get("X-Amz-Target"), ".BatchWriteItem"):
		var in struct {
			RequestItems map[string][]json.RawMessage
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()

		size := 0
		unprocessed := map[string][]json.RawMessage{}
		for table, reqs := range in.RequestItems {
			size += len(reqs)
			if len(f.batchSizes) < f.leaveUnprocessed && len(reqs) > 0 {
				unprocessed[table] = reqs[len(reqs)-1:]
			}
		}
		f.batchSizes = append(f.batchSizes, size)
		_ = json.NewEncoder(w).Encode(map[string]any{"UnprocessedItems": unprocessed})

	case strings.HasSuffix(r.Header.Get("X-Amz-Target"), ".GetItem"):
		f.mu.Lock()
		exists := f.itemStillExists
		f.mu.Unlock()
		if !exists {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"Item":{"pk":{"S":"TENANT#t1"},"sk":{"S":"GIFT#g2"}}}`))

	default:
		http.Error(w, "unexpected operation", http.StatusBadRequest)
	}
}

func (f *fakeBatchAPI) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batchSizes...)
}

func newFakeDynamoTable(t *testing.T, api *fakeBatchAPI) *DynamoTable {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := NewDynamoDBClient(context.Background(), config.DynamoDBConfig{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	return NewDynamoTable(client, "WeddingSite")
}

func batchKeys() []model.Key {
	return []model.Key{
		model.KeyFor("t1", model.KindGift, "g1"),
		model.KeyFor("t1", model.KindGift, "g2"),
		model.KeyFor("t1", model.KindGift, "g1"),
	}
}

func TestBatchDeleteResendsUnprocessedItems(t *testing.T) {
	api := &fakeBatchAPI{leaveUnprocessed: 1}
	table := newFakeDynamoTable(t, api)

	require.NoError(t, table.BatchDelete(context.Background(), batchKeys()))

	// Duplicate keys are collapsed; the retry carries only what was left over.
	assert.Equal(t, []int{2, 1}, api.calls())
}

func TestBatchDeleteGivesUpAfterBoundedRetries(t *testing.T) {
	api := &fakeBatchAPI{leaveUnprocessed: 10, itemStillExists: true}
	table := newFakeDynamoTable(t, api)

	err := table.BatchDelete(context.Background(), batchKeys())
	require.ErrorIs(t, err, ErrTransient)
	assert.Len(t, api.calls(), batchUnprocessedRetries+1)
}

func TestBatchDeleteTreatsVanishedItemsAsDone(t *testing.T) {
	api := &fakeBatchAPI{leaveUnprocessed: 10}
	table := newFakeDynamoTable(t, api)

	require.NoError(t, table.BatchDelete(context.Background(), batchKeys()))
	assert.Len(t, api.calls(), batchUnprocessedRetries+1)
}
