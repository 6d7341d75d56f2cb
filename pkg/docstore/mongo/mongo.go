// Package mongo implements docstore.Store on MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/feichai0017/certificate-processor/pkg/docstore"
)

type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

var _ docstore.Store = (*Store)(nil)

// Connect dials the server and pings it once.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{
		client:  client,
		db:      client.Database(cfg.Database),
		timeout: cfg.Timeout,
	}, nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, filter map[string]any, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	f := bson.M{}
	for k, v := range filter {
		f[k] = v
	}
	_, err := s.db.Collection(collection).ReplaceOne(ctx, f, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
