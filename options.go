package llmkit

// RequestOption mutates a Request.
type RequestOption func(*Request)

// BuildRequest creates a request from model + messages and applies opts.
func BuildRequest(model string, messages []Message, opts ...RequestOption) Request {
	req := Request{Model: model, Messages: append([]Message(nil), messages...)}
	for i := range req.Messages {
		req.Messages[i] = req.Messages[i].EnsureID()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	return req
}

func WithModel(model string) RequestOption {
	return func(r *Request) { r.Model = model }
}

func WithTemperature(v float64) RequestOption {
	return func(r *Request) { r.Temperature = &v }
}

func WithTopP(v float64) RequestOption {
	return func(r *Request) { r.TopP = &v }
}

func WithMaxTokens(v int) RequestOption {
	return func(r *Request) { r.MaxTokens = &v }
}

func WithStop(stop ...string) RequestOption {
	return func(r *Request) { r.Stop = append([]string(nil), stop...) }
}

func WithTools(tools ...ToolDefinition) RequestOption {
	return func(r *Request) { r.Tools = append(r.Tools, tools...) }
}

func WithToolChoice(choice ToolChoice) RequestOption {
	return func(r *Request) {
		v := choice
		r.ToolChoice = &v
	}
}

func WithResponseFormat(format ResponseFormat) RequestOption {
	return func(r *Request) {
		v := format
		r.ResponseFormat = &v
	}
}

func WithExtraField(key string, value any) RequestOption {
	return func(r *Request) {
		if r.Extra == nil {
			r.Extra = make(map[string]any)
		}
		r.Extra[key] = value
	}
}
