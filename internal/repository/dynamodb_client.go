package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"decision-simulator/internal/domain"
)

const (
	skMeta        = "META#"
	skPrefixEvent = "EVT#"
	historyPK     = "SIMULATION"

	// DefaultHistoryIndex is the GSI keyed by (GSI1PK, GSI1SK) used for history.
	DefaultHistoryIndex = "GSI1"

	maxTransactItems = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoClient.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoClient stores simulations in a single DynamoDB table. Each simulation
// is one partition: a META# item plus one EVT#<path>#<year> item per event.
type DynamoClient struct {
	api          dynamodbAPI
	tableName    string
	historyIndex string
}

// NewDynamo creates a DynamoDB-backed store. An empty historyIndex selects
// DefaultHistoryIndex.
func NewDynamo(api dynamodbAPI, tableName, historyIndex string) (*DynamoClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(historyIndex) == "" {
		historyIndex = DefaultHistoryIndex
	}
	return &DynamoClient{api: api, tableName: tableName, historyIndex: historyIndex}, nil
}

// simPK returns the partition key for a simulation.
func simPK(simulationID string) string {
	return "SIM#" + simulationID
}

// eventSK sorts events by path, then year.
func eventSK(path domain.PathID, year int) string {
	return fmt.Sprintf("%s%s#%02d", skPrefixEvent, path, year)
}

// SaveSimulation writes the META item and every event in one transaction.
func (c *DynamoClient) SaveSimulation(ctx context.Context, sim domain.Simulation, events []domain.TimelineEvent) error {
	if sim.ID == "" {
		return errors.New("repository: SaveSimulation: simulation id is required")
	}
	if len(events)+1 > maxTransactItems {
		return fmt.Errorf("repository: SaveSimulation: %d events exceed one transaction", len(events))
	}

	items := make([]types.TransactWriteItem, 0, len(events)+1)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(c.tableName),
			Item:                simulationItem(sim),
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	})
	for _, ev := range events {
		if ev.SimulationID != sim.ID {
			return fmt.Errorf("repository: SaveSimulation: event %s belongs to %q", ev.ID, ev.SimulationID)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(c.tableName),
				Item:      eventItem(ev),
			},
		})
	}

	if _, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("repository: SaveSimulation: %w", err)
	}
	return nil
}

// GetSimulation reads the whole simulation partition.
func (c *DynamoClient) GetSimulation(ctx context.Context, id string) (domain.Simulation, []domain.TimelineEvent, error) {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: simPK(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Simulation{}, nil, fmt.Errorf("repository: GetSimulation query: %w", err)
	}

	var (
		sim    domain.Simulation
		found  bool
		events = make([]domain.TimelineEvent, 0, len(items))
	)
	for _, item := range items {
		sk, err := strAttr(item, "SK")
		if err != nil {
			return domain.Simulation{}, nil, fmt.Errorf("repository: GetSimulation: %w", err)
		}
		switch {
		case sk == skMeta:
			sim, err = itemToSimulation(item)
			found = true
		case strings.HasPrefix(sk, skPrefixEvent):
			var ev domain.TimelineEvent
			ev, err = itemToEvent(item)
			events = append(events, ev)
		}
		if err != nil {
			return domain.Simulation{}, nil, fmt.Errorf("repository: GetSimulation unmarshal: %w", err)
		}
	}
	if !found {
		return domain.Simulation{}, nil, domain.ErrSimulationNotFound
	}
	return sim, events, nil
}

// ListSimulations queries the history index newest first.
func (c *DynamoClient) ListSimulations(ctx context.Context) ([]domain.Simulation, error) {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(c.historyIndex),
		KeyConditionExpression: aws.String("GSI1PK = :type"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":type": &types.AttributeValueMemberS{Value: historyPK},
		},
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListSimulations query: %w", err)
	}

	sims := make([]domain.Simulation, 0, len(items))
	for _, item := range items {
		sim, err := itemToSimulation(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListSimulations unmarshal: %w", err)
		}
		sims = append(sims, sim)
	}
	return sims, nil
}

// DeleteSimulation deletes event items before the META item. Partitions that
// fit in one transaction are removed atomically.
func (c *DynamoClient) DeleteSimulation(ctx context.Context, id string) error {
	items, err := c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ProjectionExpression:   aws.String("PK, SK"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: simPK(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteSimulation query: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	var deletes, meta []types.TransactWriteItem
	for _, item := range items {
		sk, err := strAttr(item, "SK")
		if err != nil {
			return fmt.Errorf("repository: DeleteSimulation: %w", err)
		}
		del := types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(c.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: simPK(id)},
					"SK": &types.AttributeValueMemberS{Value: sk},
				},
			},
		}
		if sk == skMeta {
			meta = append(meta, del)
			continue
		}
		deletes = append(deletes, del)
	}
	deletes = append(deletes, meta...)

	for start := 0; start < len(deletes); start += maxTransactItems {
		end := min(start+maxTransactItems, len(deletes))
		if _, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: deletes[start:end],
		}); err != nil {
			return fmt.Errorf("repository: DeleteSimulation: %w", err)
		}
	}
	return nil
}

func (c *DynamoClient) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return items, nil
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func simulationItem(sim domain.Simulation) map[string]types.AttributeValue {
	created := formatTime(sim.CreatedAt)
	return map[string]types.AttributeValue{
		"PK":               &types.AttributeValueMemberS{Value: simPK(sim.ID)},
		"SK":               &types.AttributeValueMemberS{Value: skMeta},
		"GSI1PK":           &types.AttributeValueMemberS{Value: historyPK},
		"GSI1SK":           &types.AttributeValueMemberS{Value: created + "#" + sim.ID},
		"id":               &types.AttributeValueMemberS{Value: sim.ID},
		"userName":         &types.AttributeValueMemberS{Value: sim.UserName},
		"userAge":          &types.AttributeValueMemberN{Value: strconv.Itoa(sim.UserAge)},
		"userPersonality":  &types.AttributeValueMemberS{Value: sim.UserPersonality},
		"decisionQuestion": &types.AttributeValueMemberS{Value: sim.DecisionQuestion},
		"pathATitle":       &types.AttributeValueMemberS{Value: sim.PathATitle},
		"pathBTitle":       &types.AttributeValueMemberS{Value: sim.PathBTitle},
		"createdAt":        &types.AttributeValueMemberS{Value: created},
		"updatedAt":        &types.AttributeValueMemberS{Value: formatTime(sim.UpdatedAt)},
	}
}

func eventItem(ev domain.TimelineEvent) map[string]types.AttributeValue {
	var image types.AttributeValue = &types.AttributeValueMemberNULL{Value: true}
	if ev.ImageURL != nil {
		image = &types.AttributeValueMemberS{Value: *ev.ImageURL}
	}
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: simPK(ev.SimulationID)},
		"SK":           &types.AttributeValueMemberS{Value: eventSK(ev.Path, ev.Year)},
		"id":           &types.AttributeValueMemberS{Value: ev.ID},
		"simulationId": &types.AttributeValueMemberS{Value: ev.SimulationID},
		"path":         &types.AttributeValueMemberS{Value: string(ev.Path)},
		"year":         &types.AttributeValueMemberN{Value: strconv.Itoa(ev.Year)},
		"title":        &types.AttributeValueMemberS{Value: ev.Title},
		"description":  &types.AttributeValueMemberS{Value: ev.Description},
		"impactScore":  &types.AttributeValueMemberN{Value: strconv.FormatFloat(ev.ImpactScore, 'f', -1, 64)},
		"imageUrl":     image,
		"createdAt":    &types.AttributeValueMemberS{Value: formatTime(ev.CreatedAt)},
	}
}

func itemToSimulation(item map[string]types.AttributeValue) (domain.Simulation, error) {
	var (
		sim domain.Simulation
		err error
	)
	if sim.ID, err = strAttr(item, "id"); err != nil {
		return domain.Simulation{}, err
	}
	if sim.UserName, err = strAttr(item, "userName"); err != nil {
		return domain.Simulation{}, err
	}
	if sim.UserAge, err = intAttr(item, "userAge"); err != nil {
		return domain.Simulation{}, err
	}
	if sim.DecisionQuestion, err = strAttr(item, "decisionQuestion"); err != nil {
		return domain.Simulation{}, err
	}
	sim.UserPersonality, _ = strAttr(item, "userPersonality") // allow empty
	sim.PathATitle, _ = strAttr(item, "pathATitle")
	sim.PathBTitle, _ = strAttr(item, "pathBTitle")
	if sim.CreatedAt, err = timeAttr(item, "createdAt"); err != nil {
		return domain.Simulation{}, err
	}
	if sim.UpdatedAt, err = timeAttr(item, "updatedAt"); err != nil {
		return domain.Simulation{}, err
	}
	return sim, nil
}

func itemToEvent(item map[string]types.AttributeValue) (domain.TimelineEvent, error) {
	var (
		ev  domain.TimelineEvent
		err error
	)
	if ev.ID, err = strAttr(item, "id"); err != nil {
		return domain.TimelineEvent{}, err
	}
	if ev.SimulationID, err = strAttr(item, "simulationId"); err != nil {
		return domain.TimelineEvent{}, err
	}
	path, err := strAttr(item, "path")
	if err != nil {
		return domain.TimelineEvent{}, err
	}
	ev.Path = domain.PathID(path)
	if ev.Year, err = intAttr(item, "year"); err != nil {
		return domain.TimelineEvent{}, err
	}
	if ev.Title, err = strAttr(item, "title"); err != nil {
		return domain.TimelineEvent{}, err
	}
	if ev.Description, err = strAttr(item, "description"); err != nil {
		return domain.TimelineEvent{}, err
	}
	if ev.ImpactScore, err = floatAttr(item, "impactScore"); err != nil {
		return domain.TimelineEvent{}, err
	}
	if url, err := strAttr(item, "imageUrl"); err == nil {
		ev.ImageURL = &url
	}
	if ev.CreatedAt, err = timeAttr(item, "createdAt"); err != nil {
		return domain.TimelineEvent{}, err
	}
	return ev, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func numAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return n.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
