// Package seed loads reference data documents of the form {"data": [...]}
// into a collection. Elements are relaxed Extended JSON, so {"$oid": ...}
// and {"$date": ...} values keep their BSON types.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/docdb"
	"github.com/loykin/docmigrate/internal/httpc"
	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Stats counts what a load did.
type Stats struct {
	Inserted int
	Skipped  int
}

// Loader inserts seed documents one by one. Duplicate key conflicts are
// logged and skipped; any other error stops the load.
type Loader struct {
	Target docdb.Inserter
	Logger *common.Logger
}

// Load inserts every element of the "data" array of doc into collection.
func (l *Loader) Load(ctx context.Context, collection string, doc []byte) (Stats, error) {
	var stats Stats
	if !gjson.ValidBytes(doc) {
		return stats, fmt.Errorf("seed for %s: invalid JSON", collection)
	}
	data := gjson.GetBytes(doc, constants.SeedDataField)
	if !data.IsArray() {
		return stats, fmt.Errorf("seed for %s: missing %q array", collection, constants.SeedDataField)
	}
	logger := common.OrDefault(l.Logger).WithComponent("seed").WithCollection(collection)

	var loadErr error
	i := 0
	data.ForEach(func(_, v gjson.Result) bool {
		defer func() { i++ }()
		if err := ctx.Err(); err != nil {
			loadErr = err
			return false
		}
		if !v.IsObject() {
			loadErr = fmt.Errorf("seed for %s: element %d is not an object", collection, i)
			return false
		}
		var d bson.D
		if err := bson.UnmarshalExtJSON([]byte(v.Raw), false, &d); err != nil {
			loadErr = fmt.Errorf("seed for %s: element %d: %w", collection, i, err)
			return false
		}
		err := l.Target.InsertOne(ctx, collection, d)
		switch {
		case err == nil:
			stats.Inserted++
		case docdb.IsDuplicateKey(err):
			stats.Skipped++
			logger.Warn("skipping document that already exists", "index", i, "id", v.Get("_id").String())
		default:
			loadErr = fmt.Errorf("seed for %s: insert element %d: %w", collection, i, err)
			return false
		}
		return true
	})
	if loadErr != nil {
		return stats, loadErr
	}
	logger.Info("seed loaded", "inserted", stats.Inserted, "skipped", stats.Skipped)
	return stats, nil
}

// LoadFrom reads location with Read and loads it.
func (l *Loader) LoadFrom(ctx context.Context, collection string, fsys fs.FS, location string) (Stats, error) {
	doc, err := Read(ctx, fsys, location)
	if err != nil {
		return Stats{}, err
	}
	return l.Load(ctx, collection, doc)
}

// Client fetches http(s) locations. Replace it to set TLS options.
var Client = &httpc.Httpc{}

// Read returns the seed document at location: an http(s) URL, a path inside
// fsys, or a local file path when fsys is nil or lacks it.
func Read(ctx context.Context, fsys fs.FS, location string) ([]byte, error) {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return Client.Fetch(ctx, location)
	}
	if fsys != nil {
		b, err := fs.ReadFile(fsys, location)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read seed %s: %w", location, err)
		}
	}
	b, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", location, err)
	}
	return b, nil
}
