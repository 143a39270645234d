package cli

import (
	"errors"
	"fmt"

	"github.com/buildflame/buildflame/internal/cache"
	"github.com/buildflame/buildflame/internal/colors"
	"github.com/buildflame/buildflame/internal/fetch"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the local build cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached builds",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm <job:build>...",
	Short: "Remove builds from the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheRm,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached build",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheExportCmd = &cobra.Command{
	Use:   "export <job:build> <file>",
	Short: "Write a cached step page to a file",
	Long: `Write a cached step page to a file, with the build parameters appended
as a script trailer. The file renders without the cache:

  buildflame cache export ci/deploy:1234 deploy.html
  buildflame render deploy.html`,
	Args: cobra.ExactArgs(2),
	RunE: runCacheExport,
}

func runCacheList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	metas, err := c.List()
	if err != nil {
		return fmt.Errorf("failed to list cache: %w", err)
	}
	if len(metas) == 0 {
		fmt.Println("Cache is empty")
		return nil
	}

	width := 0
	for _, m := range metas {
		if len(m.Key()) > width {
			width = len(m.Key())
		}
	}

	fmt.Println(colors.SectionHeader("Cached builds:"))
	for _, m := range metas {
		fmt.Printf("  %s  %8s  %s\n",
			colors.InfoText(fmt.Sprintf("%-*s", width, m.Key())),
			formatSize(m.Size),
			colors.Dim("fetched "+m.FetchedAt.Format("2006-01-02 15:04")))
	}
	return nil
}

func runCacheRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	removed := 0
	for _, arg := range args {
		spec, ok := fetch.SplitSpec(arg)
		if !ok {
			return fmt.Errorf("%s is not job:build", arg)
		}
		switch err := c.Delete(spec.String()); {
		case errors.Is(err, cache.ErrNotFound):
			fmt.Printf("%s %s not cached\n", colors.SkippedPrefix(), spec)
		case err != nil:
			return fmt.Errorf("failed to remove %s: %w", spec, err)
		default:
			fmt.Printf("%s removed %s\n", colors.FetchedPrefix(), spec)
			removed++
		}
	}
	if removed > 0 {
		fmt.Println(colors.SuccessText(fmt.Sprintf("Removed %d builds", removed)))
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	fmt.Println(colors.SuccessText("Cache cleared"))
	return nil
}

func runCacheExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	spec, ok := fetch.SplitSpec(args[0])
	if !ok {
		return fmt.Errorf("%s is not job:build", args[0])
	}
	payload, meta, err := c.Get(spec.String())
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return fmt.Errorf("%s is not cached; run: buildflame fetch %s", spec, spec)
		}
		return err
	}
	if err := fetch.SavePage(args[1], payload, meta.Parameters); err != nil {
		return fmt.Errorf("failed to export %s: %w", spec, err)
	}
	fmt.Printf("%s exported %s to %s\n", colors.FetchedPrefix(), spec, args[1])
	return nil
}

func formatSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
