package access

import (
	"time"

	"go.uber.org/zap"

	"github.com/mikepea/empaccess/pkg/empaccess/logging"
)

// Option configures the access components.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	now        func() time.Time
	classifier ManagerClassifier
	titles     JobTitleSource
}

// WithLogger sets the logger used for store failures and catalog inconsistencies.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock overrides the clock used to evaluate direct grant expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithClassifier overrides the manager-level job title policy.
func WithClassifier(c ManagerClassifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithTitleSource overrides where job titles are read from.
// The default reads the employee directory table.
func WithTitleSource(s JobTitleSource) Option {
	return func(o *options) { o.titles = s }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrNop(o.logger)
	if o.now == nil {
		o.now = time.Now
	}
	if o.classifier == nil {
		o.classifier = DefaultTitleClassifier()
	}
	return o
}
