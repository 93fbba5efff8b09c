package repository

// Option applies a configuration option to a store.
type Option func(*settings)

type settings struct {
	table string
}

// WithTable overrides the table name (DynamoDB, PostgreSQL) or key prefix (Redis).
func WithTable(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.table = name
		}
	}
}

func apply(def string, opts []Option) settings {
	s := settings{table: def}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
