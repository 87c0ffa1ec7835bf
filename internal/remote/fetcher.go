package remote

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/resilience"
)

const searchRows = 50

// Fetcher talks to one remote source.
type Fetcher interface {
	// Probe checks that the source answers at all.
	Probe(ctx context.Context) error
	// SearchArtifacts finds artifacts whose groupId or artifactId starts with
	// the partial coordinate's values.
	SearchArtifacts(ctx context.Context, partial coordinate.Coordinate) ([]coordinate.ArtifactInfo, error)
	// ListVersions returns the published versions of ga in repository order.
	ListVersions(ctx context.Context, ga coordinate.GroupArtifact) ([]string, error)
}

// HTTPFetcher reads repository metadata over HTTP and, when a search endpoint
// is configured for the source, uses its select API for discovery.
type HTTPFetcher struct {
	client         *http.Client
	source         string
	searchEndpoint string
	userAgent      string
	retry          resilience.RetryConfig
}

func NewHTTPFetcher(client *http.Client, source, searchEndpoint, userAgent string, attempts int) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{
		client:         client,
		source:         strings.TrimSuffix(source, "/") + "/",
		searchEndpoint: searchEndpoint,
		userAgent:      userAgent,
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

func (f *HTTPFetcher) Probe(ctx context.Context) error {
	return resilience.Retry(ctx, "probe "+f.source, f.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.source, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		f.decorate(req)
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%s answered %d", f.source, resp.StatusCode)
		}
		return nil
	})
}

type searchResponse struct {
	Response struct {
		Docs []struct {
			GroupID       string `json:"g"`
			ArtifactID    string `json:"a"`
			LatestVersion string `json:"latestVersion"`
			Version       string `json:"v"`
			Packaging     string `json:"p"`
		} `json:"docs"`
	} `json:"response"`
}

func (f *HTTPFetcher) SearchArtifacts(ctx context.Context, partial coordinate.Coordinate) ([]coordinate.ArtifactInfo, error) {
	q := searchQuery(partial)
	if f.searchEndpoint == "" || q == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("rows", fmt.Sprint(searchRows))
	params.Set("wt", "json")

	var parsed searchResponse
	body, err := f.get(ctx, f.searchEndpoint+"?"+params.Encode())
	if err != nil || body == nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	out := make([]coordinate.ArtifactInfo, 0, len(parsed.Response.Docs))
	for _, d := range parsed.Response.Docs {
		if d.GroupID == "" || d.ArtifactID == "" {
			continue
		}
		version := d.LatestVersion
		if version == "" {
			version = d.Version
		}
		out = append(out, coordinate.ArtifactInfo{
			GroupArtifact: coordinate.GroupArtifact{GroupID: d.GroupID, ArtifactID: d.ArtifactID},
			Version:       version,
			Packaging:     d.Packaging,
		})
	}
	return out, nil
}

// searchQuery builds a select query. Terms are prefix matches except a
// groupId given together with an artifactId, which must match exactly.
func searchQuery(partial coordinate.Coordinate) string {
	g := escapeTerm(partial.GroupID)
	a := escapeTerm(partial.ArtifactID)
	switch {
	case a != "" && g != "":
		return fmt.Sprintf(`g:"%s" AND a:%s*`, g, a)
	case a != "":
		return fmt.Sprintf("a:%s*", a)
	case g != "":
		return fmt.Sprintf("g:%s*", g)
	}
	return ""
}

var termEscaper = strings.NewReplacer(`"`, "", `\`, "", " ", "", "*", "", ":", "")

func escapeTerm(s string) string {
	return termEscaper.Replace(strings.TrimSpace(s))
}

type metadata struct {
	Versioning struct {
		Versions []string `xml:"versions>version"`
	} `xml:"versioning"`
}

func (f *HTTPFetcher) ListVersions(ctx context.Context, ga coordinate.GroupArtifact) ([]string, error) {
	if ga.GroupID == "" || ga.ArtifactID == "" {
		return nil, nil
	}
	target := f.source + metadataPath(ga)
	body, err := f.get(ctx, target)
	if err != nil || body == nil {
		return nil, err
	}
	var md metadata
	if err := xml.Unmarshal(body, &md); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", target, err)
	}
	out := make([]string, 0, len(md.Versioning.Versions))
	for _, v := range md.Versioning.Versions {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// metadataPath is the repository path of ga's maven-metadata.xml. Every
// segment is escaped, so no coordinate can leave its directory.
func metadataPath(ga coordinate.GroupArtifact) string {
	parts := strings.Split(ga.GroupID, ".")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/") + "/" + url.PathEscape(ga.ArtifactID) + "/maven-metadata.xml"
}

// get returns the body of target, or nil for a 404.
func (f *HTTPFetcher) get(ctx context.Context, target string) ([]byte, error) {
	var body []byte
	err := resilience.Retry(ctx, "fetch "+target, f.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return resilience.Permanent(err)
		}
		f.decorate(req)
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			body = nil
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("%s answered %d", target, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return resilience.Permanent(fmt.Errorf("%s answered %d", target, resp.StatusCode))
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		return err
	})
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrSourceUnavailable, "%v", err)
	}
	return body, nil
}

func (f *HTTPFetcher) decorate(req *http.Request) {
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
}

// CachedFetcher answers searches and version listings from the shared query
// cache when possible.
type CachedFetcher struct {
	next   Fetcher
	source string
	cache  *cache.QueryCache
}

func NewCachedFetcher(next Fetcher, source string, qc *cache.QueryCache) *CachedFetcher {
	return &CachedFetcher{next: next, source: source, cache: qc}
}

func (c *CachedFetcher) Probe(ctx context.Context) error {
	return c.next.Probe(ctx)
}

func (c *CachedFetcher) SearchArtifacts(ctx context.Context, partial coordinate.Coordinate) ([]coordinate.ArtifactInfo, error) {
	parts := []string{c.source, "search", partial.GroupID, partial.ArtifactID}
	v, _, err := cache.GetOrCompute(ctx, c.cache, parts, func() ([]coordinate.ArtifactInfo, error) {
		return c.next.SearchArtifacts(ctx, partial)
	})
	return v, err
}

func (c *CachedFetcher) ListVersions(ctx context.Context, ga coordinate.GroupArtifact) ([]string, error) {
	parts := []string{c.source, "versions", ga.String()}
	v, _, err := cache.GetOrCompute(ctx, c.cache, parts, func() ([]string, error) {
		return c.next.ListVersions(ctx, ga)
	})
	return v, err
}
