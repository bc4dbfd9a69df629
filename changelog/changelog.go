// Package changelog holds the changesets shipped with docmigrate. Call
// Register to add them to a registry.
package changelog

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/clone"
	"github.com/loykin/docmigrate/internal/docdb"
	"github.com/loykin/docmigrate/internal/seed"
	"go.mongodb.org/mongo-driver/v2/bson"
)

//go:embed seed/*.json
var seedFS embed.FS

// ErrNoTemplate is returned by clone changesets when no template database is configured.
var ErrNoTemplate = errors.New("template database is not configured")

const (
	LanguagesCollection  = "languages"
	StationsCollection   = "stations"
	TrainTypesCollection = "trainTypes"
)

// Definitions returns the shipped changesets.
func Definitions() []changeset.Definition {
	return []changeset.Definition{
		{
			Order:       "001",
			ID:          "someChangeId",
			Author:      "testAuthor",
			Description: "seed default languages and index nameNative",
			Body:        seedLanguages,
		},
		{
			Order:       "002",
			ID:          "someChangeId2",
			Author:      "testAuthor",
			Description: "remove Spanish",
			Body:        removeSpanish,
		},
		{
			Order:       "998",
			ID:          "cloneStations",
			Author:      "nic",
			Description: "clone stations from the template database",
			Body:        cloneFromTemplate(StationsCollection),
		},
		{
			Order:       "999",
			ID:          "cloneTrains",
			Author:      "nic",
			Description: "clone trainTypes from the template database",
			Body:        cloneFromTemplate(TrainTypesCollection),
		},
	}
}

// Register adds the shipped changesets to r.
func Register(r *changeset.Registry) error {
	return r.Register(Definitions()...)
}

func seedLanguages(ctx context.Context, c *changeset.Context) error {
	db := c.DB()
	loader := &seed.Loader{Target: db, Logger: c.Logger()}
	if _, err := loader.LoadFrom(ctx, LanguagesCollection, seedFS, "seed/languages.json"); err != nil {
		return err
	}
	return db.CreateIndex(ctx, LanguagesCollection, docdb.IndexSpec{
		Keys: bson.D{{Key: "nameNative", Value: 1}},
	}, c.IndexBuild())
}

func removeSpanish(ctx context.Context, c *changeset.Context) error {
	res, err := c.DB().Collection(LanguagesCollection).DeleteMany(ctx, bson.D{{Key: "_id", Value: "es"}})
	if err != nil {
		return fmt.Errorf("delete es: %w", err)
	}
	c.Logger().Info("removed languages", "deleted", res.DeletedCount)
	return nil
}

func cloneFromTemplate(collection string) changeset.Body {
	return func(ctx context.Context, c *changeset.Context) error {
		tpl := c.Template()
		if tpl == nil {
			return ErrNoTemplate
		}
		_, err := clone.Collection(ctx, tpl, c.DB(), collection, c.Logger())
		return err
	}
}
