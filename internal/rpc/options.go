package rpc

type callOptions struct {
	needsReply *bool
	maxRetries int
	token      string
}

type CallOption func(*callOptions)

// WithReply overrides whether the call waits for the actor's reply.
func WithReply(needsReply bool) CallOption {
	return func(o *callOptions) {
		o.needsReply = &needsReply
	}
}

// WithMaxRetries sets how many times a failed attempt is retried. Zero
// disables retries.
func WithMaxRetries(n int) CallOption {
	return func(o *callOptions) {
		o.maxRetries = n
	}
}

// WithToken sets the correlation token instead of generating one.
func WithToken(token string) CallOption {
	return func(o *callOptions) {
		o.token = token
	}
}
