package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"rateadjuster/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the twin registry.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoTwinRegistry stores twins as items keyed by device_id. The etag
// attribute is rotated on every write and guards updates.
type DynamoTwinRegistry struct {
	Client    DynamoDBAPI
	TableName string
	logger    *zap.Logger
	newETag   func() string
}

type dynamoTwinItem struct {
	DeviceID string                 `dynamodbav:"device_id"`
	ETag     string                 `dynamodbav:"etag"`
	Desired  map[string]interface{} `dynamodbav:"desired"`
}

func NewDynamoTwinRegistry(client DynamoDBAPI, tableName string, logger *zap.Logger) (*DynamoTwinRegistry, error) {
	if tableName == "" {
		return nil, fmt.Errorf("dynamodb twins table is not set")
	}
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is not initialized")
	}

	return &DynamoTwinRegistry{
		Client:    client,
		TableName: tableName,
		logger:    logger,
		newETag:   uuid.NewString,
	}, nil
}

func (s *DynamoTwinRegistry) key(deviceID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"device_id": &types.AttributeValueMemberS{Value: deviceID},
	}
}

func (s *DynamoTwinRegistry) GetTwin(ctx context.Context, deviceID string) (*models.Twin, error) {
	out, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.TableName),
		Key:            s.key(deviceID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read twin from dynamodb: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	var item dynamoTwinItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal twin: %w", err)
	}

	twin := &models.Twin{
		DeviceID: deviceID,
		ETag:     item.ETag,
		Desired:  item.Desired,
	}
	if twin.Desired == nil {
		twin.Desired = map[string]interface{}{}
	}
	return twin, nil
}

func (s *DynamoTwinRegistry) UpdateTwin(ctx context.Context, deviceID string, patch map[string]interface{}, etag string) error {
	if len(patch) == 0 {
		return nil
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	names := map[string]string{
		"#desired": "desired",
		"#etag":    "etag",
	}
	values := map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberS{Value: etag},
		":next":     &types.AttributeValueMemberS{Value: s.newETag()},
	}
	sets := []string{"#etag = :next"}

	for i, k := range keys {
		av, err := attributevalue.Marshal(patch[k])
		if err != nil {
			return fmt.Errorf("failed to marshal desired property %s: %w", k, err)
		}
		name := fmt.Sprintf("#p%d", i)
		value := fmt.Sprintf(":v%d", i)
		names[name] = k
		values[value] = av
		sets = append(sets, fmt.Sprintf("#desired.%s = %s", name, value))
	}

	_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.TableName),
		Key:                       s.key(deviceID),
		ConditionExpression:       aws.String("attribute_exists(device_id) AND #etag = :expected"),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, deviceID)
		}
		return fmt.Errorf("failed to update twin in dynamodb: %w", err)
	}

	return nil
}
