// Package jenkins provides read-only Jenkins API access for buildflame.
// It fetches the raw material for a flamechart: the Pipeline Steps page,
// build start times, build parameters, and the list of finished builds.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/buildflame/buildflame/internal/config"
)

// Client is an authenticated Jenkins API client for one server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	token      string
}

// NewClient creates a Jenkins client from configuration. The token is
// resolved from the first available source: the config value itself, a
// token file, or a token command. A username without any token source is
// an error; with no username at all the client works anonymously.
func NewClient(cfg config.JenkinsConfig) (*Client, error) {
	base := strings.TrimRight(cfg.Base, "/")
	if base == "" {
		return nil, fmt.Errorf("no Jenkins server configured. Set jenkins.base in the config or pass --jenkins-base")
	}

	token, err := resolveToken(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Username != "" && token == "" {
		return nil, fmt.Errorf("no Jenkins API token found for user %s. Set JENKINS_API_TOKEN, jenkins.token, jenkins.tokenFile or jenkins.tokenCommand", cfg.Username)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:  base,
		username: cfg.Username,
		token:    token,
	}, nil
}

// resolveToken tries the token sources in priority order.
func resolveToken(cfg config.JenkinsConfig) (string, error) {
	// 1. Inline token (the config loader already folds in
	//    JENKINS_API_TOKEN from the environment)
	if cfg.Token != "" {
		return cfg.Token, nil
	}

	// 2. Token file
	if cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("failed to read token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	// 3. Token command (e.g. a password-manager lookup)
	if cfg.TokenCommand != "" {
		output, err := exec.Command("sh", "-c", cfg.TokenCommand).Output()
		if err != nil {
			return "", fmt.Errorf("token command failed: %w", err)
		}
		return strings.TrimSpace(string(output)), nil
	}

	return "", nil
}

// TokenSource names the token source NewClient would use, for status
// output. It does not read files or run commands.
func TokenSource(cfg config.JenkinsConfig) string {
	switch {
	case cfg.Token != "":
		return "inline token (config or JENKINS_API_TOKEN)"
	case cfg.TokenFile != "":
		return "token file " + cfg.TokenFile
	case cfg.TokenCommand != "":
		return "token command"
	default:
		return ""
	}
}

// jobPath converts a job name like "deploy/webapp" into the URL path
// Jenkins uses for nested jobs: "/job/deploy/job/webapp".
func jobPath(job string) string {
	return "/job/" + strings.ReplaceAll(strings.Trim(job, "/"), "/", "/job/")
}

// get performs an authenticated GET and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("jenkins error %d for %s: %s", resp.StatusCode, url, firstLine(body))
	}
	return body, nil
}

func firstLine(body []byte) string {
	s := strings.TrimSpace(string(body))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// PipelineSteps fetches the raw "Pipeline Steps" (flowGraphTable) page
// for one build. The returned HTML is what the records extractor parses.
func (c *Client) PipelineSteps(ctx context.Context, job string, buildID int) (string, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/%d/flowGraphTable/", jobPath(job), buildID))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// BuildStartTime fetches the wall-clock start of a build, in ms since the
// epoch, from the workflow API of the build's root step.
func (c *Client) BuildStartTime(ctx context.Context, job string, buildID, rootStepID int) (int64, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/%d/execution/node/%d/wfapi/", jobPath(job), buildID, rootStepID))
	if err != nil {
		return 0, err
	}
	var wf struct {
		StartTimeMillis int64 `json:"startTimeMillis"`
	}
	if err := json.Unmarshal(body, &wf); err != nil {
		return 0, fmt.Errorf("failed to decode wfapi response: %w", err)
	}
	return wf.StartTimeMillis, nil
}

// BuildParameters fetches the parameters a build ran with.
func (c *Client) BuildParameters(ctx context.Context, job string, buildID int) (map[string]string, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/%d/api/json?tree=actions[parameters[name,value]]", jobPath(job), buildID))
	if err != nil {
		return nil, err
	}
	var reply struct {
		Actions []struct {
			Parameters []struct {
				Name  string `json:"name"`
				Value any    `json:"value"`
			} `json:"parameters"`
		} `json:"actions"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}

	params := make(map[string]string)
	for _, action := range reply.Actions {
		for _, p := range action.Parameters {
			params[p.Name] = formatParamValue(p.Value)
		}
	}
	return params, nil
}

// formatParamValue renders a parameter value the way Jenkins shows it.
// Values arrive as JSON strings, booleans or numbers.
func formatParamValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// CompletedBuilds fetches the numbers of all finished builds of a job,
// newest first as Jenkins reports them. Builds still running are skipped:
// their step listing would describe a half-finished timeline.
func (c *Client) CompletedBuilds(ctx context.Context, job string) ([]int, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/api/json?tree=allBuilds[number,building]", jobPath(job)))
	if err != nil {
		return nil, err
	}
	var reply struct {
		AllBuilds []struct {
			Number   int  `json:"number"`
			Building bool `json:"building"`
		} `json:"allBuilds"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode build list: %w", err)
	}

	var ids []int
	for _, b := range reply.AllBuilds {
		if !b.Building {
			ids = append(ids, b.Number)
		}
	}
	return ids, nil
}

// Ping checks connectivity and credentials with a minimal API request.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "/api/json?tree=url")
	return err
}
