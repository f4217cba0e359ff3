package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoProvider is the document-store counterpart of Provider.
type MongoProvider struct {
	log  *logger.Logger
	cfg  MongoConfig
	conn *lazyConn[*mongo.Client]
}

func NewMongoProvider(log *logger.Logger, cfg MongoConfig) *MongoProvider {
	p := &MongoProvider{
		log: log.With("service", "MongoProvider", "database", cfg.Database),
		cfg: cfg,
	}
	p.conn = &lazyConn[*mongo.Client]{
		open: p.open,
		close: func(c *mongo.Client) error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return c.Disconnect(ctx)
		},
		timeout: cfg.ConnectTimeout,
	}
	return p
}

func (p *MongoProvider) Database(ctx context.Context) (*mongo.Database, error) {
	client, err := p.conn.get(ctx)
	if err != nil {
		return nil, Classify(err)
	}
	return client.Database(p.cfg.Database), nil
}

func (p *MongoProvider) Close() error {
	return p.conn.shutdown()
}

func (p *MongoProvider) open(ctx context.Context) (*mongo.Client, error) {
	if p.cfg.URI == "" {
		return nil, fmt.Errorf("missing MONGODB_URI")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(p.cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	p.log.Info("Mongo connected")
	return client, nil
}
