package model

// options controls instance construction
type options struct {
	validate       bool
	ignoreRequired bool
	validateDeep   bool
}

// Option configures Create, CreateCollection and the read operations
type Option func(*options)

// WithoutValidation skips schema validation of the constructed instance
func WithoutValidation() Option {
	return func(o *options) { o.validate = false }
}

// IgnoreRequired validates with the required-relaxed checker (partial data)
func IgnoreRequired() Option {
	return func(o *options) { o.ignoreRequired = true }
}

// ValidateDeep applies full validation, required fields included, to nested
// relation instances. By default nested instances skip required checks.
func ValidateDeep() Option {
	return func(o *options) { o.validateDeep = true }
}

func newOptions(opts []Option) options {
	o := options{validate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// nested returns the options used for sub-instances of a relation
func (o options) nested() options {
	if !o.validateDeep {
		o.ignoreRequired = true
	}
	return o
}
