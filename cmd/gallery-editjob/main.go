// Copyright (C) 2026 The GoNuGet Gallery Authors.
// See LICENSE for copying information.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/gonuget/gallery/gallery/editjob"
	"github.com/gonuget/gallery/gallery/gallerydb"
	"github.com/gonuget/gallery/gallery/packagestore"
)

var (
	rootCmd = &cobra.Command{
		Use:   "gallery-editjob",
		Short: "Gallery package metadata edit job",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Apply queued package metadata edits",
		RunE:  cmdRun,
	}
)

func init() {
	flags := runCmd.Flags()
	flags.String("database", "gallery.db", "catalog database path")
	flags.String("storage-dir", "storage", "gallery file storage root")
	flags.Duration("interval", 10*time.Minute, "how frequently queued edits are applied")
	flags.Bool("once", false, "apply queued edits once and exit")
	flags.Bool("dev", false, "use development logging")

	viper.SetEnvPrefix("gallery")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	rootCmd.AddCommand(runCmd)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log, err := newLogger(viper.GetBool("dev"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := gallerydb.Open(ctx, log.Named("db"), viper.GetString("database"))
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.MigrateToLatest(ctx); err != nil {
		return err
	}

	store, err := packagestore.NewDir(viper.GetString("storage-dir"))
	if err != nil {
		return err
	}

	chore := editjob.NewChore(log.Named("editjob"), db, store, editjob.Config{
		Interval: viper.GetDuration("interval"),
	})
	defer func() { err = errs.Combine(err, chore.Close()) }()

	if viper.GetBool("once") {
		return chore.RunOnce(ctx)
	}

	err = chore.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
