package pool

import "github.com/okian/skilift/pkg/logger"

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.log = l
		}
	}
}
