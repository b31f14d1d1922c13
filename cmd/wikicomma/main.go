package main

import (
	"github.com/alecthomas/kong"

	"gitlab.com/tozd/go/cli"
	"gitlab.com/tozd/go/errors"

	wikicomma "github.com/x10102/wikicomma-sub000"
)

func main() {
	var config wikicomma.Config
	cli.Run(&config, kong.Vars{
		"defaultUserAgent":         wikicomma.DefaultUserAgent,
		"defaultRateLimitCapacity": wikicomma.DefaultRateLimitCapacity,
		"defaultMaximumJobs":       wikicomma.DefaultMaximumJobs,
		"defaultBaseDirectory":     wikicomma.DefaultBaseDirectory,
	}, func(ctx *kong.Context) errors.E {
		return errors.WithStack(ctx.Run(&config.Globals))
	})
}
