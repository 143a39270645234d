// Package fetch pulls pipeline step pages out of Jenkins and keeps them
// in the local cache. A fetch validates the page (it must contain at
// least one step) and records the build's wall-clock start time and
// parameters alongside the page, so later renders never touch Jenkins.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/buildflame/buildflame/internal/cache"
	"github.com/buildflame/buildflame/internal/jenkins"
	"github.com/buildflame/buildflame/internal/records"
	"github.com/buildflame/buildflame/internal/steps"
)

// DefaultWorkers is the fetch pool size when the configuration does not
// set one.
const DefaultWorkers = 7

// DataError reports that one build could not be fetched. Other builds
// in the same batch are unaffected.
type DataError struct {
	Job     string
	BuildID int
	Err     error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Job, e.BuildID, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// Spec names one build to fetch.
type Spec struct {
	Job     string
	BuildID int
}

func (s Spec) String() string { return cache.Key(s.Job, s.BuildID) }

// SplitSpec interprets a command-line build spec. "job:123" names one
// build; anything else, including specs with a non-numeric tail, names
// a whole job and reports ok false.
func SplitSpec(arg string) (Spec, bool) {
	i := strings.LastIndex(arg, ":")
	if i < 0 {
		return Spec{Job: arg}, false
	}
	n, err := strconv.Atoi(arg[i+1:])
	if err != nil {
		return Spec{Job: arg}, false
	}
	return Spec{Job: arg[:i], BuildID: n}, true
}

// Result is one build's step page plus the metadata a render needs.
type Result struct {
	Job         string
	BuildID     string // empty for pages loaded from disk
	StartTimeMs int64
	Parameters  map[string]string
	Payload     []byte
	Cached      bool
}

// Fetcher downloads builds through a Jenkins client into a cache.
type Fetcher struct {
	Client  *jenkins.Client
	Cache   *cache.Cache
	Markers steps.Markers
	Force   bool // re-fetch even when cached
	Workers int

	// OnStart and OnDone, when set, observe each build as the pool picks
	// it up and finishes it. They may be called from multiple goroutines.
	OnStart func(job string, buildID int)
	OnDone  func(job string, buildID int, cached bool, err error)
}

// New returns a Fetcher with the default step markers and pool size.
func New(client *jenkins.Client, c *cache.Cache) *Fetcher {
	return &Fetcher{
		Client:  client,
		Cache:   c,
		Markers: steps.DefaultMarkers(),
		Workers: DefaultWorkers,
	}
}

// Build fetches one build, serving it from the cache when possible. A
// page with no recognizable steps is rejected rather than cached.
func (f *Fetcher) Build(ctx context.Context, job string, buildID int) (Result, error) {
	key := cache.Key(job, buildID)
	if !f.Force {
		payload, meta, err := f.Cache.Get(key)
		switch {
		case err == nil:
			return Result{
				Job:         job,
				BuildID:     strconv.Itoa(buildID),
				StartTimeMs: meta.StartTimeMs,
				Parameters:  meta.Parameters,
				Payload:     payload,
				Cached:      true,
			}, nil
		case !errors.Is(err, cache.ErrNotFound):
			return Result{}, err
		}
	}

	params, err := f.Client.BuildParameters(ctx, job, buildID)
	if err != nil {
		return Result{}, &DataError{Job: job, BuildID: buildID, Err: err}
	}
	page, err := f.Client.PipelineSteps(ctx, job, buildID)
	if err != nil {
		return Result{}, &DataError{Job: job, BuildID: buildID, Err: err}
	}
	tree, err := steps.Build(records.Extract(page), f.Markers)
	if err != nil {
		return Result{}, &DataError{Job: job, BuildID: buildID, Err: fmt.Errorf("invalid job? (%w)", err)}
	}
	startMs, err := f.Client.BuildStartTime(ctx, job, buildID, tree.Root().ID)
	if err != nil {
		return Result{}, &DataError{Job: job, BuildID: buildID, Err: err}
	}

	meta := cache.Meta{Job: job, BuildID: buildID, StartTimeMs: startMs, Parameters: params}
	if err := f.Cache.Put([]byte(page), meta); err != nil {
		return Result{}, fmt.Errorf("cache %s: %w", key, err)
	}
	return Result{
		Job:         job,
		BuildID:     strconv.Itoa(buildID),
		StartTimeMs: startMs,
		Parameters:  params,
		Payload:     []byte(page),
	}, nil
}

// BuildStatus is the outcome of one build in a batch.
type BuildStatus struct {
	Spec   Spec
	Result Result
	Err    error
}

// All fetches every spec through a bounded worker pool and returns one
// status per spec, in input order. A failed build does not stop the
// batch.
func (f *Fetcher) All(ctx context.Context, specs []Spec) []BuildStatus {
	out := make([]BuildStatus, len(specs))
	if len(specs) == 0 {
		return out
	}

	workers := f.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(specs) {
		workers = len(specs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s := specs[i]
				if f.OnStart != nil {
					f.OnStart(s.Job, s.BuildID)
				}
				res, err := f.Build(ctx, s.Job, s.BuildID)
				if f.OnDone != nil {
					f.OnDone(s.Job, s.BuildID, res.Cached, err)
				}
				out[i] = BuildStatus{Spec: s, Result: res, Err: err}
			}
		}()
	}
	for i := range specs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

// Pages saved to disk carry their build parameters in a script trailer
// appended after the page proper.
var paramsTrailer = regexp.MustCompile(`(?s)<script>var parameters = (.*?)</script>\s*$`)

// LoadFile reads a step page saved to disk, such as one written by
// SavePage or saved straight from a browser. Parameters come from the
// trailer when present, and the file's modification time stands in for
// the build start time.
func LoadFile(path string) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}

	params := map[string]string{}
	if m := paramsTrailer.FindSubmatch(raw); m != nil {
		if err := json.Unmarshal(m[1], &params); err != nil {
			return Result{}, fmt.Errorf("parameters trailer in %s: %w", path, err)
		}
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Result{
		Job:         name,
		StartTimeMs: info.ModTime().UnixMilli(),
		Parameters:  params,
		Payload:     raw,
		Cached:      true,
	}, nil
}

// SavePage writes a fetched page to disk with its parameters appended
// as a trailer, in the form LoadFile reads back.
func SavePage(path string, payload []byte, params map[string]string) error {
	if params == nil {
		params = map[string]string{}
	}
	trailer, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	var buf strings.Builder
	buf.Write(payload)
	if len(payload) > 0 && payload[len(payload)-1] != '\n' {
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "<script>var parameters = %s</script>\n", trailer)
	return os.WriteFile(path, []byte(buf.String()), 0644)
}
