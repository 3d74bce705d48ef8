package postgres

import (
	"log/slog"
	"time"
)

// Default configuration values.
const (
	DefaultTablePrefix = "message"
	DefaultTimeout     = 5 * time.Second
)

type options struct {
	tablePrefix string
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures the postgres store.
type Option func(*options)

func newOptions(opts ...Option) *options {
	o := &options{
		tablePrefix: DefaultTablePrefix,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithTablePrefix sets the prefix for the records, blocks and contacts
// tables. Default "message" yields message_records, message_blocks and
// message_contacts.
func WithTablePrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.tablePrefix = prefix
		}
	}
}

// WithTimeout sets the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func (o *options) recordsTable() string  { return o.tablePrefix + "_records" }
func (o *options) blocksTable() string   { return o.tablePrefix + "_blocks" }
func (o *options) contactsTable() string { return o.tablePrefix + "_contacts" }
