package codec

import "encoding/json"

// JSON uses encoding/json. The zero value is ready to use.
// Counters written by backends ("42") decode into any numeric V.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
