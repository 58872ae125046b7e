package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Sternrassler/patent-harvester/internal/config"
	"github.com/Sternrassler/patent-harvester/pkg/cache"
	"github.com/Sternrassler/patent-harvester/pkg/pattern"
	"github.com/Sternrassler/patent-harvester/pkg/scan"
	"github.com/Sternrassler/patent-harvester/pkg/shard"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newShardCmd() *cobra.Command {
	var (
		outDir string
		shards int
	)

	cmd := &cobra.Command{
		Use:   "shard DIR...",
		Short: "Regroup JSON result files into size-balanced shards",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := shard.Collect(args...)
			if err != nil {
				return err
			}
			groups, sizes, err := shard.Split(items, shards)
			if err != nil {
				return err
			}
			paths, err := shard.Save(outDir, groups)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d items in %d shards\n", len(items), len(paths))
			for i, p := range paths {
				fmt.Fprintf(w, "  %s: %d items, ~%d bytes\n", p, len(groups[i]), sizes[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "shards", "output directory")
	cmd.Flags().IntVar(&shards, "shards", 4, "number of shards")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "merge DIR",
		Short: "Concatenate the shard files of a directory into one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := shard.Merge(args[0], out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d items written to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "merged.json", "output file")
	return cmd
}

func newScanCmd() *cobra.Command {
	var (
		expr   string
		window int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "Report pattern matches with context in a result file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			re, err := pattern.Compile(expr)
			if err != nil {
				return err
			}
			docs, err := scan.LoadFile(args[0])
			if err != nil {
				return err
			}
			return printMatches(cmd.OutOrStdout(), scan.Scan(docs, re, window), asJSON)
		},
	}

	cmd.Flags().StringVar(&expr, "pattern", "", "regular expression (default potency pattern when empty)")
	cmd.Flags().IntVar(&window, "window", scan.DefaultWindow, "characters of context on each side")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print matches as a JSON array")
	return cmd
}

func printMatches(w io.Writer, matches []scan.Match, asJSON bool) error {
	if asJSON {
		if matches == nil {
			matches = []scan.Match{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	for _, m := range matches {
		fmt.Fprintf(w, "%s [%d:%d] %q\n    %s\n", m.DocID, m.Start, m.End, m.Text, m.Excerpt)
	}
	fmt.Fprintf(w, "%d matches\n", len(matches))
	return nil
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis payload cache",
	}

	var source string
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached payloads of a source (all sources when empty)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			redisURL := cfg.Cache.RedisURL
			if redisURL == "" {
				redisURL = getEnv("REDIS_URL", "")
			}
			if redisURL == "" {
				return fmt.Errorf("no cache configured: set cache.redis_url or REDIS_URL")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rdb, err := connectRedis(ctx, redisURL)
			if err != nil {
				return err
			}
			defer rdb.Close()

			n, err := cache.NewManager(rdb, cfg.CacheTTL()).Purge(ctx, source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d payloads deleted (%s)\n", n, cache.SourcePattern(source))
			return nil
		},
	}
	purge.Flags().StringVar(&source, "source", "", "source to purge: json or html")

	cmd.AddCommand(purge)
	return cmd
}
