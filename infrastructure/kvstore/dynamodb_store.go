package kvstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	kverrors "github.com/reglet-dev/kvrunner/domain/errors"
	"github.com/reglet-dev/kvrunner/domain/ports"
)

const dynamoBackend = "dynamodb"

// Compile-time interface compliance check
var _ ports.KVStore = (*DynamoDBStore)(nil)

// DynamoDBAPI is the subset of the DynamoDB client the store uses.
// *dynamodb.Client satisfies it.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// dynamoConfig holds configuration for the DynamoDBStore.
type dynamoConfig struct {
	keyAttribute   string
	valueAttribute string
	consistentRead bool
}

func defaultDynamoConfig() dynamoConfig {
	return dynamoConfig{
		keyAttribute:   "key",
		valueAttribute: "value",
		consistentRead: true,
	}
}

// DynamoDBOption configures a DynamoDBStore instance.
type DynamoDBOption func(*dynamoConfig)

// WithKeyAttribute sets the partition key attribute name (default "key").
// The table's partition key must be of binary (B) type.
func WithKeyAttribute(name string) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.keyAttribute = name
	}
}

// WithValueAttribute sets the binary value attribute name (default "value").
func WithValueAttribute(name string) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.valueAttribute = name
	}
}

// WithConsistentRead toggles strongly consistent reads (default true).
func WithConsistentRead(enabled bool) DynamoDBOption {
	return func(c *dynamoConfig) {
		c.consistentRead = enabled
	}
}

// DynamoDBStore is a durable KVStore backed by one DynamoDB table. Keys and
// values are stored as binary attributes, so byte-for-byte equality holds.
type DynamoDBStore struct {
	client DynamoDBAPI
	table  string
	config dynamoConfig
}

// NewDynamoDBStore creates a store over table using client.
func NewDynamoDBStore(client DynamoDBAPI, table string, opts ...DynamoDBOption) *DynamoDBStore {
	cfg := defaultDynamoConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &DynamoDBStore{client: client, table: table, config: cfg}
}

// NewDynamoDBClient builds a client from the default AWS credential chain.
// A non-empty endpoint overrides service resolution (e.g. DynamoDB Local).
func NewDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Put implements ports.KVStore.
func (s *DynamoDBStore) Put(ctx context.Context, key, value []byte) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			s.config.keyAttribute:   &types.AttributeValueMemberB{Value: key},
			s.config.valueAttribute: &types.AttributeValueMemberB{Value: value},
		},
	})
	if err != nil {
		return &kverrors.StoreError{Op: "put", Backend: dynamoBackend, Err: err}
	}
	return nil
}

// Get implements ports.KVStore.
func (s *DynamoDBStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			s.config.keyAttribute: &types.AttributeValueMemberB{Value: key},
		},
		ConsistentRead: aws.Bool(s.config.consistentRead),
	})
	if err != nil {
		return nil, false, &kverrors.StoreError{Op: "get", Backend: dynamoBackend, Err: err}
	}
	if out == nil || out.Item == nil {
		return nil, false, nil
	}

	attr, ok := out.Item[s.config.valueAttribute]
	if !ok {
		return nil, false, nil
	}
	b, ok := attr.(*types.AttributeValueMemberB)
	if !ok {
		return nil, false, &kverrors.StoreError{
			Op:      "get",
			Backend: dynamoBackend,
			Err:     fmt.Errorf("attribute %q is %T, want binary", s.config.valueAttribute, attr),
		}
	}
	return b.Value, true, nil
}
