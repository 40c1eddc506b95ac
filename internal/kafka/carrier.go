package kafka

import segkafka "github.com/segmentio/kafka-go"

// HeaderCarrier exposes Kafka message headers as an OpenTelemetry
// TextMapCarrier so a workflow trace started in the API gateway continues in
// the worker that consumes the request.
type HeaderCarrier []segkafka.Header

// Get returns the first header value for key, or "".
func (c HeaderCarrier) Get(key string) string {
	for _, h := range c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces every header named key with a single key/value header.
func (c *HeaderCarrier) Set(key, value string) {
	filtered := (*c)[:0]
	for _, h := range *c {
		if h.Key != key {
			filtered = append(filtered, h)
		}
	}
	*c = append(filtered, segkafka.Header{Key: key, Value: []byte(value)})
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	seen := make(map[string]bool, len(c))
	for _, h := range c {
		if !seen[h.Key] {
			seen[h.Key] = true
			keys = append(keys, h.Key)
		}
	}
	return keys
}
