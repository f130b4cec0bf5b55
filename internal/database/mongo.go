package repository

import (
	"WidgetCS/internal/config"
	"WidgetCS/internal/lib/sl"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	flowsCollection            = "guided-flows"
	humanChatSessionCollection = "human-chat-sessions"
	humanChatMessageCollection = "human-chat-messages"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
	log           *slog.Logger
}

func NewMongoClient(conf *config.Config, logger *slog.Logger) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
		log:           logger.With(sl.Module("mongodb")),
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect error: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return fmt.Errorf("mongodb find error: %w", err)
}

// EnsureIndexes creates the unique keys the services rely on.
func (m *MongoDB) EnsureIndexes() error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)
	indexes := []struct {
		collection string
		model      mongo.IndexModel
	}{
		{flowsCollection, mongo.IndexModel{
			Keys:    bson.D{{"name", 1}},
			Options: options.Index().SetUnique(true),
		}},
		{humanChatSessionCollection, mongo.IndexModel{
			Keys:    bson.D{{"session_id", 1}},
			Options: options.Index().SetUnique(true),
		}},
		{humanChatSessionCollection, mongo.IndexModel{
			Keys: bson.D{{"status", 1}, {"created_at", 1}},
		}},
		{humanChatMessageCollection, mongo.IndexModel{
			Keys: bson.D{{"session_id", 1}, {"created_at", 1}},
		}},
	}
	for _, idx := range indexes {
		if _, err = db.Collection(idx.collection).Indexes().CreateOne(m.ctx, idx.model); err != nil {
			return fmt.Errorf("mongodb create index on %s: %w", idx.collection, err)
		}
	}
	m.log.Debug("indexes ensured")
	return nil
}
