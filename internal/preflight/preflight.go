package preflight

import (
	"context"

	"github.com/bitplane/yt-mpv/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the local checks for the given config. Network checks are
// only run when online is true.
func RunAll(ctx context.Context, cfg *config.Config, online bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir),
		CheckLedger(ctx, cfg),
		CheckCredentials(cfg),
	}

	if online {
		switch cfg.Archive.Backend {
		case "wayback":
			results = append(results, CheckEndpoint(ctx, "Wayback Machine", cfg.Wayback.BaseURL))
		default:
			results = append(results, CheckEndpoint(ctx, "Internet Archive", cfg.InternetArchive.MetadataURL))
		}
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
