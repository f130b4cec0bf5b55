package repository

import (
	"WidgetCS/entity"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SaveHumanChatSession inserts or replaces a session by its session id.
func (m *MongoDB) SaveHumanChatSession(session entity.HumanChatSession) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(humanChatSessionCollection)
	filter := bson.D{{"session_id", session.SessionID}}
	opts := options.Replace().SetUpsert(true)
	if _, err = collection.ReplaceOne(m.ctx, filter, session, opts); err != nil {
		return fmt.Errorf("mongodb save human chat session: %w", err)
	}
	return nil
}

// GetHumanChatSession returns nil when the session does not exist.
func (m *MongoDB) GetHumanChatSession(sessionID string) (*entity.HumanChatSession, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(humanChatSessionCollection)
	var session entity.HumanChatSession
	err = collection.FindOne(m.ctx, bson.D{{"session_id", sessionID}}).Decode(&session)
	if err != nil {
		return nil, m.findError(err)
	}
	return &session, nil
}

// GetHumanChatSessions lists sessions with the status, oldest first.
func (m *MongoDB) GetHumanChatSessions(status entity.SessionStatus) ([]entity.HumanChatSession, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(humanChatSessionCollection)
	opts := options.Find().SetSort(bson.D{{"created_at", 1}})
	cursor, err := collection.Find(m.ctx, bson.D{{"status", status}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find human chat sessions: %w", err)
	}
	defer cursor.Close(m.ctx)

	var sessions []entity.HumanChatSession
	if err = cursor.All(m.ctx, &sessions); err != nil {
		return nil, fmt.Errorf("mongodb decode human chat sessions: %w", err)
	}
	return sessions, nil
}

func (m *MongoDB) SaveSessionMessage(msg entity.ChatMessage) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(humanChatMessageCollection)
	if _, err = collection.InsertOne(m.ctx, msg); err != nil {
		return fmt.Errorf("mongodb insert session message: %w", err)
	}
	return nil
}

// GetSessionMessages returns up to limit of the newest messages of a session
// in chronological order.
func (m *MongoDB) GetSessionMessages(sessionID string, limit int) ([]entity.ChatMessage, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(humanChatMessageCollection)
	opts := options.Find().SetSort(bson.D{{"created_at", -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := collection.Find(m.ctx, bson.D{{"session_id", sessionID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb find session messages: %w", err)
	}
	defer cursor.Close(m.ctx)

	var messages []entity.ChatMessage
	if err = cursor.All(m.ctx, &messages); err != nil {
		return nil, fmt.Errorf("mongodb decode session messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// DeleteClosedSessions removes sessions closed before the cutoff together
// with their messages, returning the number of sessions removed.
func (m *MongoDB) DeleteClosedSessions(before time.Time) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)
	sessions := db.Collection(humanChatSessionCollection)
	filter := bson.D{
		{"status", entity.StatusClosed},
		{"closed_at", bson.D{{"$lt", before}}},
	}

	ids, err := sessions.Distinct(m.ctx, "session_id", filter)
	if err != nil {
		return 0, fmt.Errorf("mongodb find closed sessions: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	_, err = db.Collection(humanChatMessageCollection).DeleteMany(m.ctx, bson.D{{"session_id", bson.D{{"$in", ids}}}})
	if err != nil {
		return 0, fmt.Errorf("mongodb delete session messages: %w", err)
	}
	result, err := sessions.DeleteMany(m.ctx, bson.D{{"session_id", bson.D{{"$in", ids}}}})
	if err != nil {
		return 0, fmt.Errorf("mongodb delete closed sessions: %w", err)
	}
	return result.DeletedCount, nil
}
