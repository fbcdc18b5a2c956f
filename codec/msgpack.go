package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack encodes values with vmihailenco/msgpack/v5. It is the smallest of
// the struct codecs and suits the byte-budgeted stores (memcache items,
// bigcache shards, sqlite blobs). logcache also uses it to size values.
// Field names follow `msgpack:"..."` tags, not `json:"..."` ones.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) { return msgpack.Marshal(v) }

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(b, &v); err != nil {
		var zero V
		return zero, err
	}
	return v, nil
}
