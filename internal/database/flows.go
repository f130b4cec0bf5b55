package repository

import (
	"WidgetCS/entity"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateFlow is returned when the unique flow name index rejects a write.
var ErrDuplicateFlow = errors.New("flow name already exists")

func (m *MongoDB) GetFlows() ([]entity.Flow, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	opts := options.Find().SetSort(bson.D{{"created_at", 1}})
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find flows: %w", err)
	}
	defer cursor.Close(m.ctx)

	var flows []entity.Flow
	if err = cursor.All(m.ctx, &flows); err != nil {
		return nil, fmt.Errorf("mongodb decode flows: %w", err)
	}
	return flows, nil
}

// GetFlow returns nil when the flow does not exist.
func (m *MongoDB) GetFlow(id string) (*entity.Flow, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	var flow entity.Flow
	err = collection.FindOne(m.ctx, bson.D{{"_id", id}}).Decode(&flow)
	if err != nil {
		return nil, m.findError(err)
	}
	return &flow, nil
}

func (m *MongoDB) CreateFlow(flow entity.Flow) (*entity.Flow, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	now := time.Now()
	flow.ID = uuid.New().String()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	collection := connection.Database(m.database).Collection(flowsCollection)
	if _, err = collection.InsertOne(m.ctx, flow); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateFlow
		}
		return nil, fmt.Errorf("mongodb insert flow: %w", err)
	}
	return &flow, nil
}

// UpdateFlow replaces a stored flow, keeping its creation time. It returns
// false when no flow has the id.
func (m *MongoDB) UpdateFlow(flow entity.Flow) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	update := bson.D{{"$set", bson.D{
		{"name", flow.Name},
		{"options", flow.Options},
		{"updated_at", time.Now()},
	}}}
	result, err := collection.UpdateOne(m.ctx, bson.D{{"_id", flow.ID}}, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, ErrDuplicateFlow
		}
		return false, fmt.Errorf("mongodb update flow: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (m *MongoDB) DeleteFlow(id string) (bool, error) {
	connection, err := m.connect()
	if err != nil {
		return false, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(flowsCollection)
	result, err := collection.DeleteOne(m.ctx, bson.D{{"_id", id}})
	if err != nil {
		return false, fmt.Errorf("mongodb delete flow: %w", err)
	}
	return result.DeletedCount > 0, nil
}
