package registry

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DecoderFunc turns a raw payload into its typed form.
type DecoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey[K ~string] struct {
	kind    K
	version int
}

// DecoderRegistry stores versioned payload decoders for consumers, keyed by message kind.
type DecoderRegistry[K ~string] struct {
	mtx      sync.RWMutex
	registry map[registryKey[K]]DecoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry[K ~string]() *DecoderRegistry[K] {
	return &DecoderRegistry[K]{registry: make(map[registryKey[K]]DecoderFunc)}
}

// Register stores a decoder for the given kind and version.
func (r *DecoderRegistry[K]) Register(kind K, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey[K]{kind: kind, version: version}] = decoder
}

// Decode runs the decoder registered for the kind and version. A missing decoder is not
// retryable since redelivery cannot fix it.
func (r *DecoderRegistry[K]) Decode(kind K, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey[K]{kind: kind, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("decoder not registered for %s@v%d", kind, version))
	}
	return decoder(payload)
}

// JSONDecoder returns a DecoderFunc that unmarshals into a fresh value from factory.
func JSONDecoder(factory func() interface{}) DecoderFunc {
	return func(payload json.RawMessage) (interface{}, error) {
		out := factory()
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, NewNonRetryableError(fmt.Errorf("decode payload: %w", err))
		}
		return out, nil
	}
}
