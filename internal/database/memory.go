package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"wedding-site-backend/internal/model"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operation names passed to a MemoryTable fault hook.
const (
	OpGet           = "get"
	OpQuery         = "query"
	OpWrite         = "write"
	OpTransactWrite = "transact_write"
	OpBatchDelete   = "batch_delete"
)

type record = map[string]types.AttributeValue

// MemoryTable is an in-process Table with the same condition, index and
// attribute-encoding semantics as the DynamoDB adapter. Index reads are
// consistent.
type MemoryTable struct {
	mu    sync.Mutex
	items map[model.Key]record
	fault func(op string) error
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{items: make(map[model.Key]record)}
}

// InjectFault installs fn, which runs before every operation without the
// table lock held. A non-nil return aborts the operation with that error.
func (m *MemoryTable) InjectFault(fn func(op string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

func (m *MemoryTable) checkFault(op string) error {
	m.mu.Lock()
	fn := m.fault
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(op)
}

// Items returns every stored record ordered by key.
func (m *MemoryTable) Items() []model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]model.Key, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PK != keys[j].PK {
			return keys[i].PK < keys[j].PK
		}
		return keys[i].SK < keys[j].SK
	})

	out := make([]model.Item, 0, len(keys))
	for _, k := range keys {
		var item model.Item
		if err := attributevalue.UnmarshalMap(m.items[k], &item); err == nil {
			out = append(out, item)
		}
	}
	return out
}

func (m *MemoryTable) Get(ctx context.Context, key model.Key) (model.Item, error) {
	if err := m.checkFault(OpGet); err != nil {
		return model.Item{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Item{}, err
	}

	m.mu.Lock()
	rec, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return model.Item{}, ErrNotFound
	}

	var item model.Item
	if err := attributevalue.UnmarshalMap(rec, &item); err != nil {
		return model.Item{}, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, nil
}

type queryEntry struct {
	indexSK string
	key     model.Key
	rec     record
}

func (e queryEntry) less(o queryEntry) bool {
	if e.indexSK != o.indexSK {
		return e.indexSK < o.indexSK
	}
	if e.key.PK != o.key.PK {
		return e.key.PK < o.key.PK
	}
	return e.key.SK < o.key.SK
}

func (m *MemoryTable) Query(ctx context.Context, q Query) (QueryResult, error) {
	if err := m.checkFault(OpQuery); err != nil {
		return QueryResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}
	pkAttr, skAttr, err := IndexKeyAttrs(q.Index)
	if err != nil {
		return QueryResult{}, err
	}

	m.mu.Lock()
	var entries []queryEntry
	for key, rec := range m.items {
		pk, ok := stringAttr(rec, pkAttr)
		if !ok || pk != q.PartitionKey {
			continue
		}
		sk, ok := stringAttr(rec, skAttr)
		if !ok || !strings.HasPrefix(sk, q.SortKeyPrefix) {
			continue
		}
		entries = append(entries, queryEntry{indexSK: sk, key: key, rec: rec})
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if q.Descending {
			return entries[j].less(entries[i])
		}
		return entries[i].less(entries[j])
	})

	if len(q.StartKey) > 0 {
		start := queryEntry{
			indexSK: q.StartKey[skAttr],
			key:     model.Key{PK: q.StartKey[model.AttrPK], SK: q.StartKey[model.AttrSK]},
		}
		idx := sort.Search(len(entries), func(i int) bool {
			if q.Descending {
				return entries[i].less(start)
			}
			return start.less(entries[i])
		})
		entries = entries[idx:]
	}

	var lastKey map[string]string
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
		last := entries[len(entries)-1]
		lastKey = map[string]string{
			model.AttrPK: last.key.PK,
			model.AttrSK: last.key.SK,
		}
		if q.Index != "" {
			lastKey[pkAttr] = q.PartitionKey
			lastKey[skAttr] = last.indexSK
		}
	}

	items := make([]model.Item, 0, len(entries))
	for _, e := range entries {
		var item model.Item
		if err := attributevalue.UnmarshalMap(e.rec, &item); err != nil {
			return QueryResult{}, fmt.Errorf("unmarshal query item: %w", err)
		}
		items = append(items, item)
	}
	return QueryResult{Items: items, LastKey: lastKey}, nil
}

func (m *MemoryTable) Write(ctx context.Context, op WriteOp) error {
	if err := m.checkFault(OpWrite); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := op.key(); err != nil {
		return err
	}
	return m.apply([]WriteOp{op})
}

func (m *MemoryTable) TransactWrite(ctx context.Context, token string, ops []WriteOp) error {
	if err := m.checkFault(OpTransactWrite); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateTransaction(ops); err != nil {
		return err
	}
	return m.apply(ops)
}

func (m *MemoryTable) BatchDelete(ctx context.Context, keys []model.Key) error {
	if err := m.checkFault(OpBatchDelete); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

// apply checks every condition against the current state, stages the
// results and only then commits, so a failure leaves the table untouched.
func (m *MemoryTable) apply(ops []WriteOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failed []int
	for i, op := range ops {
		key, _ := op.key()
		ok, err := conditionHolds(op.Condition, m.items[key])
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		if !ok {
			failed = append(failed, i)
		}
	}
	if len(failed) > 0 {
		return &ConditionFailedError{Indexes: failed}
	}

	staged := make(map[model.Key]record, len(ops))
	for i, op := range ops {
		key, _ := op.key()
		switch {
		case op.Put != nil:
			rec, err := attributevalue.MarshalMap(op.Put)
			if err != nil {
				return fmt.Errorf("operation %d: marshal item: %w", i, err)
			}
			staged[key] = rec
		case op.Update != nil:
			rec, err := applyUpdate(m.items[key], *op.Update)
			if err != nil {
				return fmt.Errorf("operation %d: %w", i, err)
			}
			staged[key] = rec
		case op.Delete != nil:
			staged[key] = nil
		}
	}

	for key, rec := range staged {
		if rec == nil {
			delete(m.items, key)
			continue
		}
		m.items[key] = rec
	}
	return nil
}

func applyUpdate(current record, u Update) (record, error) {
	next := make(record, len(current)+2)
	for k, v := range current {
		next[k] = v
	}
	if current == nil {
		next[model.AttrPK] = attrString(u.Key.PK)
		next[model.AttrSK] = attrString(u.Key.SK)
	}

	if len(u.SetPayload) > 0 {
		payload, ok := next[model.AttrPayload].(*types.AttributeValueMemberM)
		if !ok {
			return nil, errors.New("update sets payload fields on a record without a payload map")
		}
		fields := make(map[string]types.AttributeValue, len(payload.Value)+len(u.SetPayload))
		for k, v := range payload.Value {
			fields[k] = v
		}
		for field, value := range u.SetPayload {
			av, err := attributevalue.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("marshal payload field %s: %w", field, err)
			}
			fields[field] = av
		}
		next[model.AttrPayload] = &types.AttributeValueMemberM{Value: fields}
	}

	for attr, value := range u.SetAttrs {
		next[attr] = attrString(value)
	}

	if u.IncrementVersion {
		version, _ := numberAttr(next[model.AttrVersion])
		next[model.AttrVersion] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(version+1, 'f', -1, 64)}
	}
	return next, nil
}

func conditionHolds(c Condition, rec record) (bool, error) {
	switch c.Presence {
	case MustExist:
		if rec == nil {
			return false, nil
		}
	case MustNotExist:
		if rec != nil {
			return false, nil
		}
	}

	if c.VersionEquals != nil {
		if rec == nil {
			return false, nil
		}
		version, ok := numberAttr(rec[model.AttrVersion])
		if !ok || version != float64(*c.VersionEquals) {
			return false, nil
		}
	}

	if len(c.PayloadEquals) > 0 {
		if rec == nil {
			return false, nil
		}
		payload, ok := rec[model.AttrPayload].(*types.AttributeValueMemberM)
		if !ok {
			return false, nil
		}
		for field, want := range c.PayloadEquals {
			wantAV, err := attributevalue.Marshal(want)
			if err != nil {
				return false, fmt.Errorf("marshal condition value %s: %w", field, err)
			}
			if !attributesEqual(payload.Value[field], wantAV) {
				return false, nil
			}
		}
	}
	return true, nil
}

func attributesEqual(a, b types.AttributeValue) bool {
	if a == nil || b == nil {
		return false
	}
	if an, ok := numberAttr(a); ok {
		bn, ok := numberAttr(b)
		return ok && an == bn
	}
	return reflect.DeepEqual(a, b)
}

func numberAttr(av types.AttributeValue) (float64, bool) {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	return f, err == nil
}

func stringAttr(rec record, attr string) (string, bool) {
	s, ok := rec[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}
