package download

import (
	"context"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/blackarch/wordlistctl/pkg/proxy"
	"github.com/blackarch/wordlistctl/pkg/retry"
)

// Resolver rewrites landing-page URLs into direct download links. It must
// return the input unchanged for hosts it does not know.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Options control the behavior of the HTTP fetcher.
type Options struct {
	// Timeout bounds a single request including the body; zero means none.
	Timeout   time.Duration
	UserAgent string
	Proxy     proxy.Settings
	Retry     retry.Policy
	// RateLimit caps the download rate per transfer; zero is unlimited.
	RateLimit datasize.ByteSize
	Resolver  Resolver
}
