package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/loykin/docmigrate/internal/common"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/loykin/docmigrate/internal/store/sqlstore"
)

// Store is the PostgreSQL tracking store.
type Store struct {
	sqlstore.Store
	DSN string
}

func NewStore(logger *common.Logger) *Store {
	return &Store{Store: sqlstore.Store{Dialect: Dialect{}, Logger: logger}}
}

func (p *Store) Load(config map[string]interface{}) error {
	if dsn, ok := config["dsn"].(string); ok {
		p.DSN = dsn
	}
	return nil
}

// Connect opens a pooled pgx connection.
func (p *Store) Connect(ctx context.Context) error {
	if p.DSN == "" {
		return errors.New("postgresql store requires a dsn or host")
	}
	db, err := sql.Open("pgx", p.DSN)
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	db.SetMaxOpenConns(constants.DefaultPostgresMaxConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(constants.DefaultMaxConnLifetime)
	db.SetConnMaxIdleTime(time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}
	p.DB = db

	p.Log().Info("PostgreSQL database connection established successfully")
	return nil
}
