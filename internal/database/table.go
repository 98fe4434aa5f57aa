package database

import (
	"context"
	"errors"
	"fmt"

	"wedding-site-backend/internal/model"
)

var (
	ErrNotFound        = errors.New("database: item not found")
	ErrConditionFailed = errors.New("database: condition check failed")
	// ErrTransient marks failures worth retrying: throttling, internal
	// errors and transaction conflicts.
	ErrTransient = errors.New("database: transient failure")
	// ErrStoreUnavailable is returned once transient retries are exhausted.
	ErrStoreUnavailable = errors.New("database: store unavailable")
)

// ConditionFailedError reports which operations of a write rejected their
// condition. A single Write always reports index 0.
type ConditionFailedError struct {
	Indexes []int
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("database: condition check failed for operations %v", e.Indexes)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

func (e *ConditionFailedError) Failed(index int) bool {
	for _, i := range e.Indexes {
		if i == index {
			return true
		}
	}
	return false
}

// Table is the keyed store underneath the entity store and the ledger.
type Table interface {
	// Get is a strongly consistent point read.
	Get(ctx context.Context, key model.Key) (model.Item, error)
	Query(ctx context.Context, q Query) (QueryResult, error)
	Write(ctx context.Context, op WriteOp) error
	// TransactWrite applies every op or none. token makes retries of the same
	// transaction idempotent; empty means none.
	TransactWrite(ctx context.Context, token string, ops []WriteOp) error
	// BatchDelete removes keys without conditions and without atomicity.
	BatchDelete(ctx context.Context, keys []model.Key) error
}

// MaxTransactItems is the substrate's bound on one atomic write.
const MaxTransactItems = 100

type Query struct {
	Index         string
	PartitionKey  string
	SortKeyPrefix string
	Limit         int
	StartKey      map[string]string
	Descending    bool
}

type QueryResult struct {
	Items   []model.Item
	LastKey map[string]string
}

// IndexKeyAttrs maps an index name to its key attributes. The empty name is
// the table's primary key.
func IndexKeyAttrs(index string) (pk, sk string, err error) {
	switch index {
	case "":
		return model.AttrPK, model.AttrSK, nil
	case model.BySlugIndex:
		return model.AttrGSI1PK, model.AttrGSI1SK, nil
	case model.ByStatusIndex:
		return model.AttrGSI2PK, model.AttrGSI2SK, nil
	}
	return "", "", fmt.Errorf("unknown index %q", index)
}

type Presence int

const (
	PresenceAny Presence = iota
	MustExist
	MustNotExist
)

// Condition guards a write. All set clauses must hold.
type Condition struct {
	Presence      Presence
	VersionEquals *int64
	PayloadEquals map[string]any
}

func (c Condition) empty() bool {
	return c.Presence == PresenceAny && c.VersionEquals == nil && len(c.PayloadEquals) == 0
}

// Update mutates an existing record in place.
type Update struct {
	Key              model.Key
	SetPayload       map[string]any
	SetAttrs         map[string]string
	IncrementVersion bool
}

// WriteOp holds exactly one of Put, Update or Delete.
type WriteOp struct {
	Put       *model.Item
	Update    *Update
	Delete    *model.Key
	Condition Condition
}

func (op WriteOp) key() (model.Key, error) {
	switch {
	case op.Put != nil && op.Update == nil && op.Delete == nil:
		return op.Put.Key(), nil
	case op.Update != nil && op.Put == nil && op.Delete == nil:
		return op.Update.Key, nil
	case op.Delete != nil && op.Put == nil && op.Update == nil:
		return *op.Delete, nil
	}
	return model.Key{}, errors.New("write op must set exactly one of put, update or delete")
}

func PutOp(item model.Item, cond Condition) WriteOp {
	return WriteOp{Put: &item, Condition: cond}
}

func UpdateOp(u Update, cond Condition) WriteOp {
	return WriteOp{Update: &u, Condition: cond}
}

func DeleteOp(key model.Key, cond Condition) WriteOp {
	return WriteOp{Delete: &key, Condition: cond}
}

func validateTransaction(ops []WriteOp) error {
	if len(ops) == 0 {
		return errors.New("empty transaction")
	}
	if len(ops) > MaxTransactItems {
		return fmt.Errorf("transaction has %d operations, limit is %d", len(ops), MaxTransactItems)
	}
	seen := make(map[model.Key]bool, len(ops))
	for i, op := range ops {
		key, err := op.key()
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		if seen[key] {
			return fmt.Errorf("operation %d: duplicate key %s/%s", i, key.PK, key.SK)
		}
		seen[key] = true
	}
	return nil
}
