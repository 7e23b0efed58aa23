// Copyright 2026 The hammersbald Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Command hammersbald inspects and exercises a hammersbald database.
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hammersbald/hammersbald"
)

var (
	flagCachePages int
	flagVerbose    bool

	flagFillCount  int
	flagFillTarget uint32
	flagValueSize  int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hammersbald",
	Short: "Inspect and exercise a hammersbald database",
}

func init() {
	rootCmd.PersistentFlags().IntVar(&flagCachePages, "cache-pages", 4096, "page cache capacity per file family")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log engine events")

	fillCmd.Flags().IntVarP(&flagFillCount, "count", "n", 100_000, "number of keys to insert")
	fillCmd.Flags().Uint32Var(&flagFillTarget, "fill-target", 64, "bucket fill target (creation only)")
	fillCmd.Flags().IntVar(&flagValueSize, "value-size", 64, "value size in bytes")

	rootCmd.AddCommand(statsCmd, fillCmd, scanCmd)
}

func openDB(name string, opts ...hammersbald.Option) (*hammersbald.Database, error) {
	opts = append(opts, hammersbald.WithCachePages(flagCachePages))
	if flagVerbose {
		opts = append(opts, hammersbald.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}
	return hammersbald.Open(name, opts...)
}

var statsCmd = &cobra.Command{
	Use:   "stats <name>",
	Short: "Print table shape and store sizes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Shutdown() }()

		printStats(db.Stats())
		return nil
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill <name>",
	Short: "Insert random keys and report throughput",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(args[0], hammersbald.WithFillTarget(flagFillTarget))
		if err != nil {
			return err
		}
		defer func() { _ = db.Shutdown() }()

		key := make([]byte, 32)
		value := make([]byte, flagValueSize)
		start := time.Now()
		for i := 0; i < flagFillCount; i++ {
			if _, err := rand.Read(key); err != nil {
				return err
			}
			if _, err := db.PutKeyed(key, value); err != nil {
				return err
			}
		}
		if err := db.Batch(); err != nil {
			return err
		}
		elapsed := time.Since(start)

		fmt.Printf("inserted %d keys in %s (%.0f keys/s)\n",
			flagFillCount, elapsed.Round(time.Millisecond),
			float64(flagFillCount)/elapsed.Seconds())
		printStats(db.Stats())
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <name>",
	Short: "Walk every envelope and count keyed and referenced values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = db.Shutdown() }()

		var keyed, referenced, bytes uint64
		err = db.Scan(func(p hammersbald.PRef, key, value []byte) bool {
			if key != nil {
				keyed++
			} else {
				referenced++
			}
			bytes += uint64(len(value))
			return true
		})
		if err != nil {
			return err
		}
		fmt.Printf("keyed: %d\nreferenced: %d\nvalue bytes: %d\n", keyed, referenced, bytes)
		return nil
	},
}

func printStats(s hammersbald.Stats) {
	fmt.Printf("slots: %d (level %d, split pointer %d)\n", s.Slots, s.Level, s.SplitPointer)
	fmt.Printf("entries: %d, splits: %d\n", s.Entries, s.Splits)
	fmt.Printf("data: %d B, links: %d B, table: %d B\n", s.DataBytes, s.LinkBytes, s.TableBytes)
	fmt.Printf("cache: %d hits, %d misses\n", s.CacheHits, s.CacheMisses)
}
