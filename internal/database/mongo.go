package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptotracker/internal/logger"
	"cryptotracker/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const usersCollection = "users"

// MongoUserStore keeps accounts as documents in the users collection.
type MongoUserStore struct {
	client *mongo.Client
	users  *mongo.Collection
}

// OpenMongo connects, pings and makes sure username and email are unique.
func OpenMongo(ctx context.Context, uri, database string) (*MongoUserStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("database: mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("database: mongo ping: %w", err)
	}

	users := client.Database(database).Collection(usersCollection)
	_, err = users.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("database: mongo indexes: %w", err)
	}

	logger.Log.Info("MongoDB connection established", zap.String("database", database))
	return &MongoUserStore{client: client, users: users}, nil
}

func (s *MongoUserStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoUserStore) CreateUser(ctx context.Context, u *models.User) error {
	doc := *u
	doc.Email = strings.ToLower(doc.Email)
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("database: create user %s: %w", u.Username, models.ErrAlreadyExists)
		}
		logger.Log.Error("Failed to create user document",
			zap.String("username", u.Username),
			zap.Error(err),
		)
		return fmt.Errorf("database: create user: %w", err)
	}
	return nil
}

func (s *MongoUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

func (s *MongoUserStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("database: find user: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("database: find user: %w", err)
	}
	return &u, nil
}

func (s *MongoUserStore) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password_hash": hash, "password_changed_at": changedAt}},
	)
	if err != nil {
		return fmt.Errorf("database: update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("database: update password %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *MongoUserStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
