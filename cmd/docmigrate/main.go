package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/loykin/docmigrate/changelog"
	"github.com/loykin/docmigrate/internal/changeset"
	"github.com/loykin/docmigrate/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newRootCmd wires flags, environment (DOCMIGRATE_*) and an optional config
// file into v. Running the root command without a subcommand is "up".
func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docmigrate",
		Short:         "Apply ordered changesets to a MongoDB database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd, v)
		},
	}

	v.SetDefault("uri", constants.DefaultMongoURI)
	v.SetDefault("template_database", constants.DefaultTemplateDatabase)
	v.SetDefault("lease", constants.DefaultLockLease)
	v.SetDefault("store.type", constants.DefaultStoreDriver)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Environment variables support: DOCMIGRATE_DATABASE, DOCMIGRATE_STORE_TYPE, ...
	v.SetEnvPrefix("DOCMIGRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to a config yaml")
	pf.StringP("uri", "c", v.GetString("uri"), "MongoDB connection URI")
	pf.StringP("database", "d", "", "target database name")
	pf.String("template-database", v.GetString("template_database"), "read-only template database used by clone changesets")
	pf.BoolP("foreground", "b", false, "build indexes in the foreground")
	pf.Duration("lease", v.GetDuration("lease"), "migration lock lease")
	pf.Bool("no-stale-takeover", false, "never take over an expired lock")
	pf.String("store", v.GetString("store.type"), "tracking store: mongodb, sqlite or postgresql")
	pf.String("store-path", "", "sqlite tracking store file")
	pf.String("store-dsn", "", "postgresql tracking store DSN")
	pf.String("store-uri", "", "MongoDB URI of a dedicated tracking database")
	pf.String("store-database", "", "dedicated MongoDB tracking database")
	pf.String("table-prefix", "", "prefix for the changelog and lock collections")
	pf.String("log-level", v.GetString("logging.level"), "error, warn, info or debug")
	pf.String("log-format", v.GetString("logging.format"), "text, json or color")

	for key, flag := range map[string]string{
		"config":               "config",
		"uri":                  "uri",
		"database":             "database",
		"template_database":    "template-database",
		"foreground":           "foreground",
		"lease":                "lease",
		"no_stale_takeover":    "no-stale-takeover",
		"store.type":           "store",
		"store.sqlite.path":    "store-path",
		"store.postgres.dsn":   "store-dsn",
		"store.mongo.uri":      "store-uri",
		"store.mongo.database": "store-database",
		"store.table_prefix":   "table-prefix",
		"logging.level":        "log-level",
		"logging.format":       "log-format",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	up := newUpCmd(v)
	rootCmd.Flags().AddFlagSet(up.Flags())
	rootCmd.AddCommand(up)
	rootCmd.AddCommand(newStatusCmd(v))
	rootCmd.AddCommand(newUnlockCmd(v))
	return rootCmd
}

func main() {
	if err := changelog.Register(changeset.Default); err != nil {
		exitHandler.LogFatalError(err, "invalid changelog")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(viper.GetViper()).ExecuteContext(ctx)
	stop()
	if err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
