package clone

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/loykin/docmigrate/internal/docdb"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type sliceCursor struct {
	docs []bson.D
	pos  int
	err  error
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil || c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Decode(val any) error {
	*(val.(*bson.D)) = c.docs[c.pos-1]
	return nil
}

func (c *sliceCursor) Err() error                  { return c.err }
func (c *sliceCursor) Close(context.Context) error { return nil }

type fakeDB struct {
	colls   map[string][]bson.D
	findErr error
	failErr error
}

func (f *fakeDB) Find(_ context.Context, name string) (docdb.Cursor, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return &sliceCursor{docs: f.colls[name]}, nil
}

func (f *fakeDB) InsertOne(_ context.Context, name string, doc any) error {
	if f.failErr != nil {
		return f.failErr
	}
	d := doc.(bson.D)
	for _, existing := range f.colls[name] {
		if idOf(existing) == idOf(d) {
			return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
		}
	}
	f.colls[name] = append(f.colls[name], d)
	return nil
}

func ids(docs []bson.D) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, fmt.Sprint(idOf(d)))
	}
	sort.Strings(out)
	return out
}

func TestCollection_SkipsExisting(t *testing.T) {
	src := &fakeDB{colls: map[string][]bson.D{"stations": {{{Key: "_id", Value: 1}}, {{Key: "_id", Value: 2}}}}}
	dst := &fakeDB{colls: map[string][]bson.D{"stations": {{{Key: "_id", Value: 1}, {Key: "local", Value: true}}}}}

	stats, err := Collection(context.Background(), src, dst, "stations", nil)
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if stats != (Stats{Copied: 1, Skipped: 1}) {
		t.Fatalf("stats=%+v", stats)
	}
	if got := ids(dst.colls["stations"]); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Fatalf("target ids=%v", got)
	}
	// The existing target document is kept as is.
	if len(dst.colls["stations"][0]) != 2 {
		t.Fatalf("existing document was overwritten")
	}
}

func TestCollection_EmptySource(t *testing.T) {
	src := &fakeDB{colls: map[string][]bson.D{}}
	dst := &fakeDB{colls: map[string][]bson.D{}}
	stats, err := Collection(context.Background(), src, dst, "trainTypes", nil)
	if err != nil || stats != (Stats{}) {
		t.Fatalf("empty clone => %+v, %v", stats, err)
	}
}

func TestCollection_Errors(t *testing.T) {
	boom := errors.New("boom")
	one := map[string][]bson.D{"c": {{{Key: "_id", Value: 1}}}}

	if _, err := Collection(context.Background(), &fakeDB{findErr: boom}, &fakeDB{}, "c", nil); !errors.Is(err, boom) {
		t.Fatalf("expected find error, got %v", err)
	}
	if _, err := Collection(context.Background(), &fakeDB{colls: one}, &fakeDB{failErr: boom}, "c", nil); !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
}
