package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/buildflame/buildflame/internal/builds"
	"github.com/buildflame/buildflame/internal/cache"
	"github.com/buildflame/buildflame/internal/chart"
	"github.com/buildflame/buildflame/internal/colors"
	"github.com/buildflame/buildflame/internal/config"
	"github.com/buildflame/buildflame/internal/fetch"
	"github.com/buildflame/buildflame/internal/nodes"
	"github.com/buildflame/buildflame/internal/records"
	"github.com/buildflame/buildflame/internal/steps"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render <job:build | file>...",
	Short: "Render cached builds as an HTML flamechart",
	Long: `Render one or more builds onto a single flamechart.

Each argument is either job:build, served from the local cache (fetch it
first), or the path of a pipeline steps page saved to disk. All builds
land on one chart, scaled to a shared time axis, so related builds can
be compared:

  buildflame render ci/deploy:1234 ci/deploy:1235 -o compare.html --open`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

var (
	renderOut   string
	renderTitle string
	renderOpen  bool
)

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "Output file (default <job>:<build>.html in render.outputdir)")
	renderCmd.Flags().StringVar(&renderTitle, "title", "", "Chart title (default derived from build titles)")
	renderCmd.Flags().BoolVar(&renderOpen, "open", false, "Open the chart in a browser")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rules := cfg.Render.Colors
	if len(rules) == 0 {
		rules = chart.DefaultRules()
	}
	mapper, err := chart.NewMapper(rules)
	if err != nil {
		return err
	}

	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var ds []*builds.Data
	for _, arg := range args {
		res, err := resolveBuild(c, arg)
		if err != nil {
			return err
		}
		d, err := reconstruct(res, cfg, mapper)
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		ds = append(ds, d)
	}

	out := renderOut
	if out == "" {
		out = filepath.Join(cfg.Render.OutputDir, chartName(args[0]))
	}
	file, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}

	title := renderTitle
	if title == "" {
		title = cfg.Render.Title
	}
	if err := chart.Render(file, ds, title, mapper); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", colors.RenderedPrefix(), out)
	if renderOpen {
		if err := openBrowser(out); err != nil {
			fmt.Printf("%s could not open a browser: %v\n", colors.SkippedPrefix(), err)
		}
	}
	return nil
}

// resolveBuild loads one render argument: a page file on disk, or a
// cached job:build.
func resolveBuild(c *cache.Cache, arg string) (fetch.Result, error) {
	if _, err := os.Stat(arg); err == nil {
		return fetch.LoadFile(arg)
	}
	spec, ok := fetch.SplitSpec(arg)
	if !ok {
		return fetch.Result{}, fmt.Errorf("%s is neither a file nor job:build", arg)
	}
	payload, meta, err := c.Get(cache.Key(spec.Job, spec.BuildID))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return fetch.Result{}, fmt.Errorf("%s is not cached; run: buildflame fetch %s", arg, arg)
		}
		return fetch.Result{}, err
	}
	return fetch.Result{
		Job:         spec.Job,
		BuildID:     strconv.Itoa(spec.BuildID),
		StartTimeMs: meta.StartTimeMs,
		Parameters:  meta.Parameters,
		Payload:     payload,
		Cached:      true,
	}, nil
}

// reconstruct rebuilds the timeline from a step page and assembles the
// chart data for one build.
func reconstruct(res fetch.Result, cfg *config.Config, mapper *chart.Mapper) (*builds.Data, error) {
	tree, err := steps.Build(records.Extract(string(res.Payload)), steps.DefaultMarkers())
	if err != nil {
		return nil, err
	}
	forest, err := nodes.Coalesce(tree)
	if err != nil {
		return nil, err
	}
	if err := forest.Normalize(); err != nil {
		return nil, err
	}
	return builds.New(res.Job, res.BuildID, res.StartTimeMs, res.Parameters,
		cfg.Render.TitleParameter, forest, mapper), nil
}

// chartName derives the output file name from the first argument:
// ci/deploy:42 becomes ci-deploy:42.html.
func chartName(arg string) string {
	name := strings.ReplaceAll(arg, "/", "-")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return name + ".html"
}

func openBrowser(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
