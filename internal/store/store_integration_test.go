package store

import (
	"context"
	"testing"

	"github.com/loykin/docmigrate/internal/docdb"
	"github.com/loykin/docmigrate/internal/testutil"
)

func TestPostgres_Contract(t *testing.T) {
	dsn := testutil.PostgresDSN(t)
	st, err := Open(context.Background(), Config{Driver: DriverPostgres, DriverConfig: &PostgresConfig{DSN: dsn}}, nil)
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	defer func() { _ = st.Close() }()

	exerciseRecords(t, st)
	exerciseLock(t, st)
	exerciseConcurrentLock(t, st)
}

func TestMongo_ColocatedContract(t *testing.T) {
	uri := testutil.MongoURI(t)
	ctx := context.Background()
	client, err := docdb.Connect(ctx, uri, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	st, err := OpenMongo(ctx, client.Mongo().Database("docmigrate_store_test"), TableNames{}, nil)
	if err != nil {
		t.Fatalf("open mongo store: %v", err)
	}
	defer func() { _ = st.Close() }()

	exerciseRecords(t, st)
	exerciseLock(t, st)
	exerciseConcurrentLock(t, st)
}

func TestMongo_DedicatedDatabase(t *testing.T) {
	uri := testutil.MongoURI(t)
	cfg := Config{Driver: DriverMongo, DriverConfig: &MongoConfig{URI: uri, Database: "bookkeeping"}}
	st, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open mongo store: %v", err)
	}
	defer func() { _ = st.Close() }()
	exerciseRecords(t, st)
}
