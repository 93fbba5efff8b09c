package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okian/skilift/internal/domain/model"
)

// DynamoDB attribute names.
const (
	attrSkierID   = "SkierID"
	attrDaySeason = "DaySeason"
	attrLiftID    = "LiftID"
	attrResortID  = "ResortID"
	attrTime      = "Time"
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore writes records into a table keyed by SkierID (N) and DaySeason (S).
type DynamoStore struct {
	api   DynamoAPI
	table string
}

// NewDynamoStore wraps an existing client.
func NewDynamoStore(api DynamoAPI, opts ...Option) *DynamoStore {
	s := apply(DefaultDynamoTable, opts)
	return &DynamoStore{api: api, table: s.table}
}

// OpenDynamo builds a client from the default AWS credential chain. A
// non-empty endpoint points it at a local emulator.
func OpenDynamo(ctx context.Context, region, endpoint string, opts ...Option) (*DynamoStore, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewDynamoStore(client, opts...), nil
}

func number(n int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
}

func dynamoKey(skierID int, daySeason string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrSkierID:   number(skierID),
		attrDaySeason: &types.AttributeValueMemberS{Value: daySeason},
	}
}

// Put writes the item, replacing any item with the same key.
func (s *DynamoStore) Put(ctx context.Context, r model.Record) error {
	if err := validate(r); err != nil {
		return err
	}
	item := dynamoKey(r.SkierID, r.DaySeason)
	item[attrLiftID] = number(r.LiftID)
	item[attrResortID] = number(r.ResortID)
	item[attrTime] = number(r.Time)

	if _, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("dynamodb put %s: %w", r.Key(), err)
	}
	return nil
}

// Get reads the item with a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, skierID int, daySeason string) (model.Record, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            dynamoKey(skierID, daySeason),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.Record{}, fmt.Errorf("dynamodb get: %w", err)
	}
	if len(out.Item) == 0 {
		return model.Record{}, ErrNotFound
	}
	return decodeItem(out.Item)
}

func decodeItem(item map[string]types.AttributeValue) (model.Record, error) {
	var r model.Record
	var err error
	if r.SkierID, err = numberAttr(item, attrSkierID); err != nil {
		return r, err
	}
	ds, ok := item[attrDaySeason].(*types.AttributeValueMemberS)
	if !ok {
		return r, fmt.Errorf("%w: %s", ErrCorruptRecord, attrDaySeason)
	}
	r.DaySeason = ds.Value
	if r.LiftID, err = numberAttr(item, attrLiftID); err != nil {
		return r, err
	}
	if r.ResortID, err = numberAttr(item, attrResortID); err != nil {
		return r, err
	}
	if r.Time, err = numberAttr(item, attrTime); err != nil {
		return r, err
	}
	return r, nil
}

func numberAttr(item map[string]types.AttributeValue, name string) (int, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrCorruptRecord, name)
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrCorruptRecord, name, err)
	}
	return v, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *DynamoStore) Close() error { return nil }
