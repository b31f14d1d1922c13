// Package wikicomma incrementally archives one or more Wikidot-like hosted
// wikis to flat JSON metadata and 7z-compacted content on disk. Its
// configuration follows the same kong/cli.ConfigFlag pattern used
// throughout this package's teacher lineage: flags, environment variables,
// and an optional JSON/YAML file layer on top of each other.
package wikicomma

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"gitlab.com/tozd/go/cli"
	"gitlab.com/tozd/go/errors"
	"gitlab.com/tozd/go/zerolog"

	"github.com/x10102/wikicomma-sub000/internal/archive"
	"github.com/x10102/wikicomma-sub000/internal/ratelimit"
	"github.com/x10102/wikicomma-sub000/internal/telemetry"
	"github.com/x10102/wikicomma-sub000/internal/wikidot"
)

const (
	// DefaultUserAgent is sent on every outbound request when no
	// user_agent is configured.
	DefaultUserAgent = "wikicomma-sub000/1.0 (+https://github.com/x10102/wikicomma-sub000)"
	// DefaultRateLimitCapacity is the default number of requests allowed
	// per rate_limit_period_ms, as a kong.Vars-compatible string.
	DefaultRateLimitCapacity = "1"
	// DefaultMaximumJobs is the default per-site worker pool size, as a
	// kong.Vars-compatible string.
	DefaultMaximumJobs = "4"
	// DefaultBaseDirectory is where archived sites are written when
	// base_directory is not set.
	DefaultBaseDirectory = "./data"
)

// WikiConfig is one entry of the `wikis` list: a single site to archive.
//
//nolint:lll
type WikiConfig struct {
	Name        string   `help:"Short name for this wiki; also its directory name under base_directory." placeholder:"NAME"  required:"" yaml:"name"`
	URL         string   `help:"Base URL of the wiki, e.g. https://example.wikidot.com."                  placeholder:"URL"   required:"" yaml:"url"`
	Blacklist   []string `help:"Page names or path.Match globs to skip entirely."                         placeholder:"GLOB"              yaml:"blacklist"`
	MaximumJobs int      `help:"Overrides the global maximum_jobs for this wiki only."                    placeholder:"NUM"                yaml:"maximum_jobs"`
}

// Validate checks a single wiki entry in isolation; cross-entry checks
// (duplicate names/URLs) are done once by RunCommand.Validate, which sees
// the whole list.
func (w *WikiConfig) Validate() error {
	if w.Name == "" {
		return errors.New("wiki name is required")
	}
	if w.URL == "" {
		return errors.New("wiki url is required")
	}
	return nil
}

// Globals describes top-level (global) flags shared by every command, per
// the teacher's own Globals/LoggingConfig/ConfigFlag layering.
//
//nolint:lll
type Globals struct {
	zerolog.LoggingConfig `yaml:",inline"`

	Version kong.VersionFlag `help:"Show program's version and exit."                                              short:"V" yaml:"-"`
	Config  cli.ConfigFlag   `help:"Load configuration from a JSON or YAML file." name:"config" placeholder:"PATH" short:"c" env:"WIKICOMMA_CONFIG" yaml:"-"`
}

// RunCommand is the (only, default) command: run one incremental crawl pass
// over every configured wiki.
//
//nolint:lll
type RunCommand struct {
	BaseDirectory string `default:"${defaultBaseDirectory}" help:"Directory under which every wiki's data is stored."                    placeholder:"DIR" type:"path" yaml:"base_directory"`
	UserAgent     string `default:"${defaultUserAgent}"      help:"User-Agent header sent on every outbound request."                     placeholder:"STRING"          yaml:"user_agent"`
	HTTPProxy     string `                                    help:"HTTP proxy URL used for plain http:// requests."                       placeholder:"URL"             yaml:"http_proxy"`
	SOCKSProxy    string `                                    help:"SOCKS5 proxy address (host:port) used for https:// requests."          placeholder:"ADDR"            yaml:"socks_proxy"`

	RateLimitCapacity int `default:"${defaultRateLimitCapacity}" help:"Requests allowed per rate_limit_period_ms, shared across all sites." placeholder:"NUM" yaml:"rate_limit_capacity"`
	RateLimitPeriodMs int `default:"1000"                        help:"Refill period, in milliseconds, for rate_limit_capacity."            placeholder:"MS"  yaml:"rate_limit_period_ms"`
	DelayMs           int `                                      help:"Extra delay, in milliseconds, a worker sleeps between tasks."        placeholder:"MS"  yaml:"delay_ms"`
	MaximumJobs       int `default:"${defaultMaximumJobs}"       help:"Default number of concurrent workers per site."                      placeholder:"NUM" yaml:"maximum_jobs"`

	ArchiveBinary string `default:"7z" help:"Name or path of the 7z-compatible binary used to compact archived content." placeholder:"PATH" yaml:"archive_binary"`

	DryRun bool `help:"Resolve sitemaps and report what would change, without fetching or writing anything." yaml:"dry_run"`

	Wikis []WikiConfig `help:"A wiki to archive. Can be repeated." name:"wiki" sep:"none" yaml:"wikis"`
}

// Validate checks the whole configuration once every field has been parsed:
// each wiki individually, then that no two wikis share a name or URL.
func (c *RunCommand) Validate() error {
	names := mapset.NewThreadUnsafeSet[string]()
	urls := mapset.NewThreadUnsafeSet[string]()

	for i := range c.Wikis {
		if err := c.Wikis[i].Validate(); err != nil {
			return errors.WithMessagef(err, "wiki at index %d", i)
		}
		if !names.Add(c.Wikis[i].Name) {
			return errors.Errorf(`duplicate wiki name "%s"`, c.Wikis[i].Name)
		}
		if !urls.Add(c.Wikis[i].URL) {
			return errors.Errorf(`duplicate wiki url "%s"`, c.Wikis[i].URL)
		}
	}
	return nil
}

// Run builds one Engine per configured wiki and runs them concurrently,
// sharing a single rate-limit bucket and sitemap lock across all of them,
// per spec.md §5's cross-site coordination requirement.
func (c *RunCommand) Run(globals *Globals) errors.E {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.New().String()
	globals.Logger = globals.Logger.With().Str("run", runID).Logger()
	globals.Logger.Info().Int("wikis", len(c.Wikis)).Msg("starting crawl run")

	bucket := ratelimit.New(c.RateLimitCapacity, time.Duration(c.RateLimitPeriodMs)*time.Millisecond)
	bucket.Start()
	defer bucket.Stop()

	archiver := archive.New(c.ArchiveBinary)
	sink := telemetry.NewWriterSink(os.Stdout)

	var sitemapLock sync.Mutex
	var wg sync.WaitGroup
	errCh := make(chan errors.E, len(c.Wikis))

	for _, wiki := range c.Wikis {
		maximumJobs := c.MaximumJobs
		if wiki.MaximumJobs > 0 {
			maximumJobs = wiki.MaximumJobs
		}

		siteConfig := wikidot.SiteConfig{
			Tag:         wiki.Name,
			Name:        wiki.Name,
			BaseURL:     wiki.URL,
			Dir:         c.BaseDirectory + "/" + wiki.Name,
			Blacklist:   wikidot.Blacklist(wiki.Blacklist),
			MaximumJobs: maximumJobs,
			DelayMs:     c.DelayMs,
			UserAgent:   c.UserAgent,
			HTTPProxy:   c.HTTPProxy,
			SOCKSProxy:  c.SOCKSProxy,
			DryRun:      c.DryRun,
		}

		engine, errE := wikidot.NewEngine(siteConfig, &sitemapLock, bucket, archiver, sink, globals.Logger)
		if errE != nil {
			return errors.WithMessagef(errE, "wiki %q", wiki.Name)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if errE := engine.Run(ctx); errE != nil {
				globals.Logger.Error().Err(errE).Str("site", siteConfig.Name).Msg("site run failed")
				errCh <- errE
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for errE := range errCh {
		return errE
	}
	return nil
}

// Config provides configuration. It is used as configuration for Kong's
// command-line parser as well.
type Config struct {
	Globals `yaml:"globals"`

	Run RunCommand `cmd:"" default:"withargs" help:"Run an incremental crawl pass over every configured wiki." yaml:"run"`
}
