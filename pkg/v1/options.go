package v1

import "github.com/sirupsen/logrus"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	workers     int
	zeroVectors bool
	logger      logrus.FieldLogger
	workspace   string
}

// WithWorkers bounds the goroutines used for the similarity matrix. Zero
// means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(c *clientConfig) {
		c.workers = n
	}
}

// WithZeroSimilarity scores zero embeddings as dissimilar to everything
// instead of failing the selection.
func WithZeroSimilarity() Option {
	return func(c *clientConfig) {
		c.zeroVectors = true
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithWorkspace points the client at a poolsel workspace for SelectPool.
func WithWorkspace(path string) Option {
	return func(c *clientConfig) {
		c.workspace = path
	}
}
