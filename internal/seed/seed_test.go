package seed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// fakeCollection enforces _id uniqueness like a real collection.
type fakeCollection struct {
	docs    map[string]bson.D
	order   []string
	failOn  string
	failErr error
}

func newFake() *fakeCollection { return &fakeCollection{docs: map[string]bson.D{}} }

func (f *fakeCollection) InsertOne(_ context.Context, _ string, doc any) error {
	d := doc.(bson.D)
	var id string
	for _, e := range d {
		if e.Key == "_id" {
			id = fmt.Sprint(e.Value)
		}
	}
	if id == f.failOn && f.failErr != nil {
		return f.failErr
	}
	if _, ok := f.docs[id]; ok {
		return mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key error"}}}
	}
	f.docs[id] = d
	f.order = append(f.order, id)
	return nil
}

func TestLoad_DuplicatesAreSkipped(t *testing.T) {
	target := newFake()
	l := &Loader{Target: target}
	stats, err := l.Load(context.Background(), "things", []byte(`{"data":[{"_id":1,"v":"a"},{"_id":1,"v":"b"}]}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.Inserted != 1 || stats.Skipped != 1 {
		t.Fatalf("stats=%+v, want 1 inserted 1 skipped", stats)
	}
	if got := target.docs["1"]; len(got) != 2 || got[1].Value != "a" {
		t.Fatalf("first document must win, got %v", got)
	}
}

func TestLoad_ExtendedJSONTypes(t *testing.T) {
	target := newFake()
	doc := `{"data":[{"_id":{"$oid":"5f1d7c2e9d1e8a3b4c5d6e7f"},"at":{"$date":"2020-01-01T00:00:00Z"},"n":{"$numberLong":"7"}}]}`
	if _, err := (&Loader{Target: target}).Load(context.Background(), "typed", []byte(doc)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	d := target.docs[target.order[0]]
	if _, ok := d[0].Value.(bson.ObjectID); !ok {
		t.Fatalf("_id should decode as ObjectID, got %T", d[0].Value)
	}
	if _, ok := d[1].Value.(bson.DateTime); !ok {
		t.Fatalf("at should decode as DateTime, got %T", d[1].Value)
	}
	if v, ok := d[2].Value.(int64); !ok || v != 7 {
		t.Fatalf("n should decode as int64 7, got %T %v", d[2].Value, d[2].Value)
	}
}

func TestLoad_OtherErrorsAbort(t *testing.T) {
	boom := errors.New("disk full")
	target := newFake()
	target.failOn, target.failErr = "2", boom
	stats, err := (&Loader{Target: target}).Load(context.Background(), "c", []byte(`{"data":[{"_id":1},{"_id":2},{"_id":3}]}`))
	if !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if stats.Inserted != 1 || len(target.docs) != 1 {
		t.Fatalf("load must stop at the failure, stats=%+v", stats)
	}
}

func TestLoad_MalformedInput(t *testing.T) {
	tests := map[string]string{
		"invalid json":   `{"data":[`,
		"missing data":   `{"rows":[]}`,
		"data not array": `{"data":{}}`,
		"non object":     `{"data":[1]}`,
		"bad extjson":    `{"data":[{"_id":{"$oid":"nope"}}]}`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := (&Loader{Target: newFake()}).Load(context.Background(), "c", []byte(in)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoad_EmptyData(t *testing.T) {
	stats, err := (&Loader{Target: newFake()}).Load(context.Background(), "c", []byte(`{"data":[]}`))
	if err != nil || stats != (Stats{}) {
		t.Fatalf("empty load => %+v, %v", stats, err)
	}
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Loader{Target: newFake()}).Load(ctx, "c", []byte(`{"data":[{"_id":1}]}`)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRead_Sources(t *testing.T) {
	ctx := context.Background()
	fsys := fstest.MapFS{"seed/languages.json": {Data: []byte(`{"data":[{"_id":"en"}]}`)}}
	if b, err := Read(ctx, fsys, "seed/languages.json"); err != nil || len(b) == 0 {
		t.Fatalf("fs read => %q, %v", b, err)
	}

	path := filepath.Join(t.TempDir(), "local.json")
	if err := os.WriteFile(path, []byte(`{"data":[]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if b, err := Read(ctx, fsys, path); err != nil || string(b) != `{"data":[]}` {
		t.Fatalf("local fallback => %q, %v", b, err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"_id":"x"}]}`))
	}))
	defer srv.Close()
	target := newFake()
	stats, err := (&Loader{Target: target}).LoadFrom(ctx, "remote", nil, srv.URL+"/seed.json")
	if err != nil || stats.Inserted != 1 {
		t.Fatalf("url load => %+v, %v", stats, err)
	}

	if _, err := Read(ctx, nil, filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
