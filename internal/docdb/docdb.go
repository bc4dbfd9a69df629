// Package docdb holds the MongoDB connection used by the migration engine and
// the narrow views of it handed to changesets, the seed loader and the cloner.
package docdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/retry"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// IndexBuild selects how index builds are requested from the server.
type IndexBuild int

const (
	// Background builds do not block other operations on the collection.
	Background IndexBuild = iota
	Foreground
)

func (b IndexBuild) String() string {
	if b == Foreground {
		return "foreground"
	}
	return "background"
}

// Cursor is the subset of *mongo.Cursor the cloner iterates.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// Inserter inserts single documents into a named collection.
type Inserter interface {
	InsertOne(ctx context.Context, collection string, doc any) error
}

// Finder streams every document of a named collection.
type Finder interface {
	Find(ctx context.Context, collection string) (Cursor, error)
}

// IsDuplicateKey reports whether err is a duplicate key conflict.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// Client owns the driver connection pool.
type Client struct {
	client *mongo.Client
	logger *common.Logger
}

// Connect dials uri and pings the primary, retrying transient failures.
func Connect(ctx context.Context, uri string, logger *common.Logger) (*Client, error) {
	logger = common.OrDefault(logger).WithComponent("docdb")
	uri = strings.TrimSpace(uri)
	if uri == "" {
		uri = constants.DefaultMongoURI
	}
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(constants.DefaultConnectTimeout).
		SetServerSelectionTimeout(constants.DefaultConnectTimeout)
	mc, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", common.MaskSensitiveData(uri), err)
	}
	err = retry.WithRetry(ctx, nil, logger, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, constants.DefaultConnectTimeout)
		defer cancel()
		return mc.Ping(pctx, readpref.Primary())
	})
	if err != nil {
		_ = mc.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping %s: %w", common.MaskSensitiveData(uri), err)
	}
	logger.Info("connected to MongoDB", "uri", uri)
	return &Client{client: mc, logger: logger}, nil
}

// Mongo exposes the underlying driver client.
func (c *Client) Mongo() *mongo.Client { return c.client }

// Database returns a read-write handle on name.
func (c *Client) Database(name string) *Database {
	return NewDatabase(c.client.Database(name))
}

// Source returns a read-only handle on name.
func (c *Client) Source(name string) *Source {
	return &Source{db: c.client.Database(name)}
}

// Disconnect closes the connection pool.
func (c *Client) Disconnect(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// Database is the read-write target handed to changeset bodies.
type Database struct {
	db *mongo.Database
}

// NewDatabase wraps a driver database.
func NewDatabase(db *mongo.Database) *Database { return &Database{db: db} }

// Name returns the database name.
func (d *Database) Name() string { return d.db.Name() }

// Mongo exposes the driver database for bodies that need the full API.
func (d *Database) Mongo() *mongo.Database { return d.db }

// Collection returns a driver collection handle.
func (d *Database) Collection(name string) *mongo.Collection { return d.db.Collection(name) }

// InsertOne implements Inserter.
func (d *Database) InsertOne(ctx context.Context, collection string, doc any) error {
	_, err := d.db.Collection(collection).InsertOne(ctx, doc)
	return err
}

// Find implements Finder.
func (d *Database) Find(ctx context.Context, collection string) (Cursor, error) {
	return find(ctx, d.db, collection)
}

// IndexSpec describes a single index for CreateIndex.
type IndexSpec struct {
	Keys   bson.D
	Name   string
	Unique bool
}

// CreateIndex issues a createIndexes command. The background flag is sent
// explicitly because the typed index options no longer carry it; servers
// from 4.2 on accept and ignore it.
func (d *Database) CreateIndex(ctx context.Context, collection string, spec IndexSpec, build IndexBuild) error {
	idx := bson.D{{Key: "key", Value: spec.Keys}}
	if spec.Name != "" {
		idx = append(idx, bson.E{Key: "name", Value: spec.Name})
	} else {
		idx = append(idx, bson.E{Key: "name", Value: indexName(spec.Keys)})
	}
	if spec.Unique {
		idx = append(idx, bson.E{Key: "unique", Value: true})
	}
	idx = append(idx, bson.E{Key: "background", Value: build == Background})
	cmd := bson.D{
		{Key: "createIndexes", Value: collection},
		{Key: "indexes", Value: bson.A{idx}},
	}
	if err := d.db.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("create index on %s: %w", collection, err)
	}
	return nil
}

// indexName mirrors the server's default "field_1_other_-1" naming.
func indexName(keys bson.D) string {
	parts := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		parts = append(parts, k.Key, fmt.Sprint(k.Value))
	}
	return strings.Join(parts, "_")
}

// Source is a read-only view of a database, used for template data.
type Source struct {
	db *mongo.Database
}

// NewSource wraps a driver database as read-only.
func NewSource(db *mongo.Database) *Source { return &Source{db: db} }

// Name returns the database name.
func (s *Source) Name() string { return s.db.Name() }

// Find implements Finder.
func (s *Source) Find(ctx context.Context, collection string) (Cursor, error) {
	return find(ctx, s.db, collection)
}

func find(ctx context.Context, db *mongo.Database, collection string) (Cursor, error) {
	cur, err := db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find %s.%s: %w", db.Name(), collection, err)
	}
	return cur, nil
}

// Count returns the number of documents matching filter.
func (s *Source) Count(ctx context.Context, collection string, filter any) (int64, error) {
	if filter == nil {
		filter = bson.D{}
	}
	return s.db.Collection(collection).CountDocuments(ctx, filter)
}
