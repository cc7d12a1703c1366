package main

import (
	"context"
	"fmt"
	"os"

	"github.com/deemkeen/microblog/activitypub"
	"github.com/deemkeen/microblog/db"
	"github.com/deemkeen/microblog/log"
	"github.com/deemkeen/microblog/util"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          util.Name,
	Short:        "Single-account ActivityPub microblog with an ssh interface",
	Version:      util.GetVersion(),
	SilenceUsage: true,
}

// loadConf reads the configuration and applies its log level.
func loadConf() (*util.AppConfig, error) {
	conf, err := util.ReadConf(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := log.SetLevel(conf.Conf.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid logLevel %q: %w", conf.Conf.LogLevel, err)
	}
	return conf, nil
}

// openDB opens the configured database and brings its schema up to date.
// The caller must close it.
func openDB(conf *util.AppConfig) (*db.DB, error) {
	path := util.ResolveFilePath(conf.Conf.DatabasePath)
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the local account and its keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = username
		}

		conf, err := loadConf()
		if err != nil {
			return err
		}
		database, err := openDB(conf)
		if err != nil {
			return err
		}
		defer database.Close()

		// setup never talks to other servers
		fed, err := activitypub.New(conf.Origin(), database, activitypub.NewKeyManager(database), nil, log.New("setup"))
		if err != nil {
			return err
		}
		_, actor, err := fed.CreateLocalAccount(context.Background(), username, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", actor.Handle, actor.URI)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and print the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConf()
		if err != nil {
			return err
		}
		database, err := openDB(conf)
		if err != nil {
			return err
		}
		defer database.Close()

		current, latest, dirty, err := database.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d of %d (dirty: %t)\n", current, latest, dirty)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConf()
		if err != nil {
			return err
		}
		redacted := *conf
		if redacted.Conf.WebPassword != "" {
			redacted.Conf.WebPassword = "********"
		}
		fmt.Fprintln(cmd.OutOrStdout(), util.PrettyPrint(redacted))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	setupCmd.Flags().String("username", "", "account username (a-z, 0-9, _ and -)")
	setupCmd.Flags().String("name", "", "display name (defaults to the username)")
	_ = setupCmd.MarkFlagRequired("username")

	rootCmd.AddCommand(serveCmd, setupCmd, migrateCmd, configCmd)
}
