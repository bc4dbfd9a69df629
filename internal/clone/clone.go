// Package clone copies a collection from a source database into a target,
// tolerating documents the target already has.
package clone

import (
	"context"
	"fmt"

	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/docdb"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type Stats struct {
	Copied  int
	Skipped int
}

// Collection streams every document of name from src and inserts it into dst
// under the same name. Duplicate keys are logged and skipped; any other
// error stops the copy.
func Collection(ctx context.Context, src docdb.Finder, dst docdb.Inserter, name string, logger *common.Logger) (Stats, error) {
	var stats Stats
	logger = common.OrDefault(logger).WithComponent("clone").WithCollection(name)

	cur, err := src.Find(ctx, name)
	if err != nil {
		return stats, err
	}
	defer func() { _ = cur.Close(context.WithoutCancel(ctx)) }()

	for cur.Next(ctx) {
		var doc bson.D
		if err := cur.Decode(&doc); err != nil {
			return stats, fmt.Errorf("clone %s: decode: %w", name, err)
		}
		err := dst.InsertOne(ctx, name, doc)
		switch {
		case err == nil:
			stats.Copied++
		case docdb.IsDuplicateKey(err):
			stats.Skipped++
			logger.Warn("skipping document that already exists", "id", idOf(doc))
		default:
			return stats, fmt.Errorf("clone %s: insert: %w", name, err)
		}
	}
	if err := cur.Err(); err != nil {
		return stats, fmt.Errorf("clone %s: cursor: %w", name, err)
	}
	logger.Info("finished clone", "copied", stats.Copied, "skipped", stats.Skipped)
	return stats, nil
}

func idOf(doc bson.D) any {
	for _, e := range doc {
		if e.Key == "_id" {
			return e.Value
		}
	}
	return nil
}
