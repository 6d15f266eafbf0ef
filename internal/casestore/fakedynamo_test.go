package casestore_test

import (
	"context"
	"maps"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/myrjola/fraudalert/internal/errors"
)

type item = map[string]types.AttributeValue

// fakeDynamo is an in-process table keyed by nameKey.
//
// It understands the update expressions DynamoStore emits and nothing more.
type fakeDynamo struct {
	mu      sync.Mutex
	created bool
	keys    []string
	items   map[string]item
	// failDescribe makes the next n DescribeTable calls fail with a network-like error.
	failDescribe int
	// err is returned by every data plane call when set.
	err error
	// unprocessOnce leaves the first item of the next batch write unprocessed.
	unprocessOnce  bool
	describeCalls  int
	batchCalls     int
	lastUpdateExpr string
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]item{}} //nolint:exhaustruct // zero values are fine.
}

var errNetwork = errors.New("dial tcp: connection refused")

func keyValue(m item) string {
	if v, ok := m["nameKey"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) put(it item) {
	key := keyValue(it)
	if _, ok := f.items[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.items[key] = maps.Clone(it)
}

func (f *fakeDynamo) GetItem(
	_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: maps.Clone(f.items[keyValue(in.Key)])}, nil //nolint:exhaustruct // test.
}

func (f *fakeDynamo) PutItem(
	_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.put(in.Item)
	return &dynamodb.PutItemOutput{}, nil //nolint:exhaustruct // test.
}

func (f *fakeDynamo) UpdateItem(
	_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.lastUpdateExpr = aws.ToString(in.UpdateExpression)
	key := keyValue(in.Key)
	old, ok := f.items[key]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")} //nolint:exhaustruct,lll // test.
	}
	updated := maps.Clone(old)
	updated["caseStatus"] = in.ExpressionAttributeValues[":status"]
	updated["updatedAt"] = in.ExpressionAttributeValues[":updatedAt"]
	if outcome, hasOutcome := in.ExpressionAttributeValues[":outcome"]; hasOutcome {
		updated["outcome"] = outcome
	} else {
		delete(updated, "outcome")
	}
	f.items[key] = updated
	return &dynamodb.UpdateItemOutput{Attributes: old}, nil //nolint:exhaustruct // test.
}

func (f *fakeDynamo) Scan(
	_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options),
) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if in.Select == types.SelectCount {
		count := int32(len(f.items)) //nolint:gosec // small test tables.
		if in.Limit != nil && count > *in.Limit {
			count = *in.Limit
		}
		return &dynamodb.ScanOutput{Count: count}, nil //nolint:exhaustruct // test.
	}
	items := make([]item, 0, len(f.keys))
	for _, key := range f.keys {
		items = append(items, maps.Clone(f.items[key]))
	}
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items))}, nil //nolint:exhaustruct,gosec // test.
}

func (f *fakeDynamo) BatchWriteItem(
	_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options),
) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batchCalls++
	unprocessed := map[string][]types.WriteRequest{}
	for table, requests := range in.RequestItems {
		for i, r := range requests {
			if f.unprocessOnce && i == 0 {
				f.unprocessOnce = false
				unprocessed[table] = append(unprocessed[table], r)
				continue
			}
			f.put(r.PutRequest.Item)
		}
	}
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil //nolint:exhaustruct // test.
}

func (f *fakeDynamo) DescribeTable(
	_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options),
) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.describeCalls++
	if f.failDescribe > 0 {
		f.failDescribe--
		return nil, errNetwork
	}
	if !f.created {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found")} //nolint:exhaustruct // test.
	}
	return &dynamodb.DescribeTableOutput{ //nolint:exhaustruct // test.
		Table: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusActive}, //nolint:exhaustruct,lll // test.
	}, nil
}

func (f *fakeDynamo) CreateTable(
	_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options),
) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = true
	return &dynamodb.CreateTableOutput{ //nolint:exhaustruct // test.
		TableDescription: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusActive}, //nolint:exhaustruct,lll // test.
	}, nil
}

func (f *fakeDynamo) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}
