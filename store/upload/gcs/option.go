package gcs

import "log/slog"

type options struct {
	bucket          string
	prefix          string
	endpoint        string
	credentialsJSON []byte
	credentialsFile string
	logger          *slog.Logger
}

// Option configures the GCS store.
type Option func(*options)

// WithBucket sets the bucket name. Required.
func WithBucket(bucket string) Option {
	return func(o *options) { o.bucket = bucket }
}

// WithPrefix sets the object key prefix.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithEndpoint sets a custom endpoint, e.g. a storage emulator.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithCredentialsJSON authenticates with an inline service account key.
func WithCredentialsJSON(json []byte) Option {
	return func(o *options) { o.credentialsJSON = json }
}

// WithCredentialsFile authenticates with a service account key file.
func WithCredentialsFile(path string) Option {
	return func(o *options) { o.credentialsFile = path }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
