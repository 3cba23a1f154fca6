// Package updates checks GitHub releases for a newer build on a cron
// schedule. Checks are best-effort and never block startup.
package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"hyquery/pkg/logger"
)

const (
	releaseAPIURL = "https://api.github.com/repos/Hyvote/hyquery/releases/latest"
	releasesURL   = "https://github.com/Hyvote/hyquery/releases/latest"

	cacheDuration  = 10 * time.Minute
	requestTimeout = 5 * time.Second
	defaultCron    = "0 * * * *" // hourly
)

// Checker fetches the latest release tag and compares it to the running
// version. Responses are cached for ten minutes so cron ticks and manual
// checks don't hammer the API.
type Checker struct {
	current string
	client  *http.Client
	apiURL  string

	mu           sync.Mutex
	cachedLatest string
	lastCheck    time.Time

	now func() time.Time
}

func NewChecker(currentVersion string) *Checker {
	return &Checker{
		current: currentVersion,
		client:  &http.Client{Timeout: requestTimeout},
		apiURL:  releaseAPIURL,
		now:     time.Now,
	}
}

// ReleasesURL is where operators can download the newer build.
func ReleasesURL() string { return releasesURL }

// Check returns the newer version string, or "" when up to date or the
// check failed.
func (c *Checker) Check(ctx context.Context) string {
	latest, err := c.fetchLatest(ctx)
	if err != nil {
		logger.Warn("update_check_failed", "error", err.Error())
		return ""
	}
	if latest == "" {
		return ""
	}
	if IsNewerVersion(latest, c.current) {
		logger.Info("update_available", "current", c.current, "latest", latest, "url", releasesURL)
		return latest
	}
	logger.Debug("update_check_current", "current", c.current, "latest", latest)
	return ""
}

func (c *Checker) fetchLatest(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.cachedLatest != "" && c.now().Sub(c.lastCheck) < cacheDuration {
		cached := c.cachedLatest
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "HyQuery-UpdateChecker")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.Unmarshal(body, &release); err != nil {
		return "", err
	}
	if release.TagName == "" {
		return "", fmt.Errorf("release API response missing tag_name")
	}

	version := strings.TrimPrefix(release.TagName, "v")
	c.mu.Lock()
	c.cachedLatest = version
	c.lastCheck = c.now()
	c.mu.Unlock()
	return version, nil
}

// Run performs one immediate check and then re-checks on the cron
// schedule until ctx is cancelled. An empty cronExpr falls back to hourly.
func (c *Checker) Run(ctx context.Context, cronExpr string) error {
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid update check cron expression: %s", cronExpr)
	}

	go func() {
		c.Check(ctx)
		for {
			next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
			if err != nil {
				logger.Error("update_nexttick_failed", "cron", cronExpr, "error", err.Error())
				next = time.Now().UTC().Add(time.Hour)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
				c.Check(ctx)
			}
		}
	}()
	return nil
}

// IsNewerVersion compares dotted numeric versions. Pre-release suffixes
// (after '-') are ignored for the numeric compare; at equal numbers a
// stable release supersedes a pre-release of the same version.
func IsNewerVersion(latest, current string) bool {
	latestParts := strings.Split(normalizeVersion(latest), ".")
	currentParts := strings.Split(normalizeVersion(current), ".")

	n := max(len(latestParts), len(currentParts))
	for i := 0; i < n; i++ {
		l := versionPart(latestParts, i)
		c := versionPart(currentParts, i)
		if l != c {
			return l > c
		}
	}
	return !strings.Contains(latest, "-") && strings.Contains(current, "-")
}

func normalizeVersion(v string) string {
	if strings.TrimSpace(v) == "" {
		return "0"
	}
	if i := strings.Index(v, "-"); i > 0 {
		return v[:i]
	}
	return v
}

func versionPart(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return n
}
