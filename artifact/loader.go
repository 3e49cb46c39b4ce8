package artifact

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/cenkalti/backoff/v5"
)

// LoadFile reads a contract artifact from the local filesystem.
func LoadFile(path string) (*LoadedArtifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, archerr.Wrap(archerr.KindArtifactLoad, err, "failed to read artifact file "+path)
	}
	return Build(raw)
}

// LoadBytes builds an artifact directly from in-memory bytes.
func LoadBytes(raw []byte) (*LoadedArtifact, error) {
	return Build(raw)
}

// RemoteOptions configures a registry fetch.
type RemoteOptions struct {
	Client     *http.Client
	MaxRetries uint
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (o RemoteOptions) withDefaults() RemoteOptions {
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.MinBackoff == 0 {
		o.MinBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 5 * time.Second
	}
	return o
}

// LoadRemote fetches a contract artifact from a registry URL over HTTP GET,
// retrying on transient (5xx, network) failures with exponential backoff,
// and treating 4xx as terminal.
func LoadRemote(ctx context.Context, url string, opts RemoteOptions) (*LoadedArtifact, error) {
	opts = opts.withDefaults()

	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(archerr.Wrap(archerr.KindArtifactLoad, err, "failed to build artifact registry request"))
		}
		resp, err := opts.Client.Do(req)
		if err != nil {
			return nil, archerr.Wrap(archerr.KindArtifactLoad, err, "artifact registry unreachable")
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, archerr.New(archerr.KindArtifactLoad, "artifact registry returned transient error")
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(archerr.New(archerr.KindArtifactLoad, "artifact registry returned client error"))
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, archerr.Wrap(archerr.KindArtifactLoad, err, "failed to read artifact registry response")
		}
		return body, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.MinBackoff
	policy.MaxInterval = opts.MaxBackoff
	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(opts.MaxRetries))
	if err != nil {
		return nil, err
	}
	return Build(raw)
}
