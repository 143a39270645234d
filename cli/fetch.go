package cli

import (
	"fmt"
	"sync"

	"github.com/buildflame/buildflame/internal/colors"
	"github.com/buildflame/buildflame/internal/fetch"
	"github.com/buildflame/buildflame/internal/jenkins"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <job[:build]>...",
	Short: "Download builds from Jenkins into the local cache",
	Long: `Download pipeline step data for one or more builds.

A spec is either job:build for a single build, or a bare job name to
fetch every completed build of that job. Jobs inside folders use their
full path:

  buildflame fetch ci/deploy:1234
  buildflame fetch ci/deploy ci/e2e:7 --force

A build that fails to download is reported and skipped; the rest of the
batch still completes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

var (
	fetchForce   bool
	fetchWorkers int
)

func init() {
	fetchCmd.Flags().BoolVarP(&fetchForce, "force", "f", false, "Re-fetch builds already in the cache")
	fetchCmd.Flags().IntVar(&fetchWorkers, "workers", 0, "Parallel downloads (default from config)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := jenkins.NewClient(cfg.Jenkins)
	if err != nil {
		return err
	}
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()

	var specs []fetch.Spec
	for _, arg := range args {
		spec, ok := fetch.SplitSpec(arg)
		if ok {
			specs = append(specs, spec)
			continue
		}
		ids, err := client.CompletedBuilds(ctx, spec.Job)
		if err != nil {
			return fmt.Errorf("failed to list builds of %s: %w", spec.Job, err)
		}
		if len(ids) == 0 {
			fmt.Printf("%s %s has no completed builds\n", colors.SkippedPrefix(), spec.Job)
		}
		for _, id := range ids {
			specs = append(specs, fetch.Spec{Job: spec.Job, BuildID: id})
		}
	}
	if len(specs) == 0 {
		return fmt.Errorf("nothing to fetch")
	}

	f := fetch.New(client, c)
	f.Force = fetchForce
	if fetchWorkers > 0 {
		f.Workers = fetchWorkers
	} else if cfg.Fetch.Workers > 0 {
		f.Workers = cfg.Fetch.Workers
	}

	var mu sync.Mutex
	f.OnStart = func(job string, id int) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Printf("Fetching %s:%d\n", job, id)
	}
	f.OnDone = func(job string, id int, cached bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		build := fmt.Sprintf("%s:%d", job, id)
		switch {
		case err != nil:
			fmt.Println(colors.ColorizeBuildStatus("failed", fmt.Sprintf("ERROR: skipping %v", err)))
		case cached:
			fmt.Printf("%s %s\n", colors.ColorizeBuildStatus("cached", build), colors.Dim("(cached)"))
		default:
			fmt.Println(colors.ColorizeBuildStatus("fetched", build))
		}
	}

	statuses := f.All(ctx, specs)

	var fetched, cached, failed int
	for _, st := range statuses {
		switch {
		case st.Err != nil:
			failed++
		case st.Result.Cached:
			cached++
		default:
			fetched++
		}
	}

	fmt.Println()
	summary := fmt.Sprintf("Fetched %d, already cached %d, failed %d", fetched, cached, failed)
	if failed > 0 {
		fmt.Println(colors.WarningText(summary))
	} else {
		fmt.Println(colors.SuccessText(summary))
	}
	if fetched+cached == 0 {
		return fmt.Errorf("no builds fetched")
	}
	return nil
}
