package casestore

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/myrjola/fraudalert/internal/errors"
	"github.com/myrjola/fraudalert/internal/models"
	"github.com/shopspring/decimal"
)

var errStoreClosed = errors.NewSentinel("store closed")

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (
		*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (
		*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (
		*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (
		*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (
		*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (
		*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (
		*dynamodb.CreateTableOutput, error)
}

const (
	// fieldNameKey is the partition key, the lower-cased customer name.
	fieldNameKey = "nameKey"
	// batchWriteLimit is the maximum number of requests in one BatchWriteItem call.
	batchWriteLimit = 25
	// batchWriteRounds bounds resubmission of unprocessed items within one Seed call.
	batchWriteRounds = 5
	tableActiveWait  = 30 * time.Second
)

// DynamoStore is the primary backend storing one item per customer in a DynamoDB table.
type DynamoStore struct {
	api     DynamoAPI
	table   string
	timeout time.Duration
	logger  *slog.Logger
	closed  atomic.Bool
}

// NewDynamoStore stores cases in table. Call EnsureTable before first use on a fresh account.
func NewDynamoStore(api DynamoAPI, table string, timeout time.Duration, logger *slog.Logger) *DynamoStore {
	return &DynamoStore{
		api:     api,
		table:   table,
		timeout: timeout,
		logger:  logger.With(slog.String("source", "DynamoStore"), slog.String("table", table)),
		closed:  atomic.Bool{},
	}
}

// caseItem maps a table item. Attribute names are the persisted field names plus the partition key.
type caseItem struct {
	NameKey             string     `dynamodbav:"nameKey"`
	UserName            string     `dynamodbav:"userName"`
	SecurityIdentifier  string     `dynamodbav:"securityIdentifier"`
	CardEnding          string     `dynamodbav:"cardEnding"`
	CaseStatus          string     `dynamodbav:"caseStatus"`
	TransactionName     string     `dynamodbav:"transactionName"`
	TransactionAmount   amountAttr `dynamodbav:"transactionAmount"`
	TransactionTime     string     `dynamodbav:"transactionTime"`
	TransactionCategory string     `dynamodbav:"transactionCategory"`
	TransactionSource   string     `dynamodbav:"transactionSource"`
	SecurityQuestion    string     `dynamodbav:"securityQuestion"`
	SecurityAnswer      string     `dynamodbav:"securityAnswer"`
	Outcome             *string    `dynamodbav:"outcome,omitempty"`
	UpdatedAt           *string    `dynamodbav:"updatedAt,omitempty"`
}

// amountAttr persists a currency amount as a DynamoDB number with two decimal places.
type amountAttr decimal.Decimal

func (a amountAttr) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: formatAmount(decimal.Decimal(a))}, nil
}

func (a *amountAttr) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	default:
		return errors.New("transactionAmount is not a number")
	}
	d, err := parseAmount(raw)
	if err != nil {
		return err
	}
	*a = amountAttr(d)
	return nil
}

func toItem(c models.FraudCase) caseItem {
	return caseItem{
		NameKey:             nameKey(c.CustomerName),
		UserName:            c.CustomerName,
		SecurityIdentifier:  c.SecurityIdentifier,
		CardEnding:          c.CardEnding,
		CaseStatus:          string(c.Status),
		TransactionName:     c.TransactionMerchant,
		TransactionAmount:   amountAttr(c.TransactionAmount),
		TransactionTime:     formatTransactionTime(c.TransactionTime),
		TransactionCategory: c.TransactionCategory,
		TransactionSource:   c.TransactionSource,
		SecurityQuestion:    c.SecurityQuestion,
		SecurityAnswer:      c.SecurityAnswer,
		Outcome:             c.Outcome,
		UpdatedAt:           formatUpdatedAt(c.UpdatedAt),
	}
}

func (i caseItem) toModel() (models.FraudCase, error) {
	at, err := time.Parse(models.TransactionTimeLayout, i.TransactionTime)
	if err != nil {
		return models.FraudCase{}, errors.Wrap(err, "parse transaction time", slog.String("name_key", i.NameKey))
	}
	updatedAt, err := parseUpdatedAt(i.UpdatedAt)
	if err != nil {
		return models.FraudCase{}, err
	}
	return models.FraudCase{
		CustomerName:        i.UserName,
		SecurityIdentifier:  i.SecurityIdentifier,
		CardEnding:          i.CardEnding,
		Status:              models.CaseStatus(i.CaseStatus),
		TransactionMerchant: i.TransactionName,
		TransactionAmount:   decimal.Decimal(i.TransactionAmount),
		TransactionTime:     at,
		TransactionCategory: i.TransactionCategory,
		TransactionSource:   i.TransactionSource,
		SecurityQuestion:    i.SecurityQuestion,
		SecurityAnswer:      i.SecurityAnswer,
		Outcome:             i.Outcome,
		UpdatedAt:           updatedAt,
	}, nil
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{fieldNameKey: &types.AttributeValueMemberS{Value: key}}
}

// EnsureTable creates the table if it doesn't exist and waits until it's active.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return unavailable(err, "describe table")
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "creating table")
	if _, err = s.api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(fieldNameKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(fieldNameKey), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	}); err != nil {
		var inUse *types.ResourceInUseException
		if !errors.As(err, &inUse) {
			return unavailable(err, "create table")
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(s.api)
	if err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, tableActiveWait); err != nil {
		return unavailable(err, "wait for table")
	}
	return nil
}

func (s *DynamoStore) Lookup(ctx context.Context, name string) (models.FraudCase, error) {
	if err := s.ensureOpen(); err != nil {
		return models.FraudCase{}, err
	}
	key, err := lookupKey(name)
	if err != nil {
		return models.FraudCase{}, err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.FraudCase{}, unavailable(err, "get item", slog.String("customer", name))
	}
	if len(out.Item) == 0 {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "no case found", slog.String("customer", name))
		return models.FraudCase{}, errors.Wrap(ErrNotFound, "lookup case", slog.String("customer", name))
	}
	var item caseItem
	if err = attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return models.FraudCase{}, errors.Wrap(err, "unmarshal case item")
	}
	fraudCase, err := item.toModel()
	if err != nil {
		return models.FraudCase{}, errors.Wrap(err, "map case item")
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "retrieved case", slog.String("customer", fraudCase.CustomerName))
	return fraudCase, nil
}

func (s *DynamoStore) UpdateStatus(
	ctx context.Context,
	name string,
	status models.CaseStatus,
	outcome *string,
) (UpdateResult, error) {
	if err := s.ensureOpen(); err != nil {
		return UpdateResult{}, err
	}
	u, err := newStatusUpdate(name, status, outcome)
	if err != nil {
		return UpdateResult{}, err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	names := map[string]string{
		"#key":       fieldNameKey,
		"#status":    fieldCaseStatus,
		"#updatedAt": fieldUpdatedAt,
		"#outcome":   fieldOutcome,
	}
	values := map[string]types.AttributeValue{
		":status":    &types.AttributeValueMemberS{Value: string(u.status)},
		":updatedAt": &types.AttributeValueMemberS{Value: *formatUpdatedAt(&u.updatedAt)},
	}
	expr := "SET #status = :status, #updatedAt = :updatedAt"
	if u.outcome != nil {
		expr += ", #outcome = :outcome"
		values[":outcome"] = &types.AttributeValueMemberS{Value: *u.outcome}
	} else {
		expr += " REMOVE #outcome"
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyOf(u.key),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(#key)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "no case to update", slog.String("customer", u.name))
			return UpdateResult{}, errors.Wrap(ErrNotFound, "update case status", slog.String("customer", u.name))
		}
		return UpdateResult{}, unavailable(err, "update item", slog.String("customer", u.name))
	}

	var before string
	if av, ok := out.Attributes[fieldCaseStatus].(*types.AttributeValueMemberS); ok {
		before = av.Value
	}
	result := UpdateResult{
		Before:    models.CaseStatus(before),
		After:     u.status,
		Modified:  true,
		UpdatedAt: u.updatedAt,
	}
	logStatusChange(ctx, s.logger, u, result)
	return result, nil
}

func (s *DynamoStore) List(ctx context.Context) ([]models.FraudCase, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	var cases []models.FraudCase
	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, unavailable(err, "scan cases")
		}
		var items []caseItem
		if err = attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, errors.Wrap(err, "unmarshal case items")
		}
		for _, item := range items {
			fraudCase, mapErr := item.toModel()
			if mapErr != nil {
				return nil, errors.Wrap(mapErr, "map case item")
			}
			cases = append(cases, fraudCase)
		}
	}
	slices.SortStableFunc(cases, func(a, b models.FraudCase) int {
		return strings.Compare(nameKey(a.CustomerName), nameKey(b.CustomerName))
	})
	return cases, nil
}

func (s *DynamoStore) Put(ctx context.Context, fraudCase models.FraudCase) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if _, err := lookupKey(fraudCase.CustomerName); err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	item, err := attributevalue.MarshalMap(toItem(fraudCase))
	if err != nil {
		return errors.Wrap(err, "marshal case item")
	}
	if _, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.table), Item: item}); err != nil {
		return unavailable(err, "put item", slog.String("customer", fraudCase.CustomerName))
	}
	return nil
}

func (s *DynamoStore) Seed(ctx context.Context, cases []models.FraudCase) (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.api.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
		Select:    types.SelectCount,
		Limit:     aws.Int32(1),
	})
	if err != nil {
		return 0, unavailable(err, "count cases")
	}
	if count.Count > 0 || len(cases) == 0 {
		return 0, nil
	}

	for chunk := range slices.Chunk(cases, batchWriteLimit) {
		requests := make([]types.WriteRequest, 0, len(chunk))
		for _, c := range chunk {
			item, marshalErr := attributevalue.MarshalMap(toItem(c))
			if marshalErr != nil {
				return 0, errors.Wrap(marshalErr, "marshal case item")
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		if err = s.batchWrite(ctx, requests); err != nil {
			return 0, err
		}
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "seeded fraud cases", slog.Int("count", len(cases)))
	return len(cases), nil
}

func (s *DynamoStore) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: requests}
	for range batchWriteRounds {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return unavailable(err, "batch write items")
		}
		if len(out.UnprocessedItems[s.table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
	}
	return unavailable(errors.New("unprocessed items remain"), "batch write items",
		slog.Int("unprocessed", len(pending[s.table])))
}

// Close is a no-op, the SDK client holds no resources that need releasing.
// Close marks the store closed. Later calls fail with ErrUnavailable. The SDK client holds no connections of its own.
func (s *DynamoStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *DynamoStore) ensureOpen() error {
	if s.closed.Load() {
		return unavailable(errStoreClosed, "dynamodb store", slog.String("table", s.table))
	}
	return nil
}
