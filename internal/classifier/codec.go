package classifier

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wonny/smartflow/internal/contracts"
)

// MarshalBinary encodes the model with msgpack
func (m *Model) MarshalBinary() ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s model: %w", Kind, err)
	}
	return data, nil
}

// UnmarshalBinary decodes a model written by MarshalBinary
func (m *Model) UnmarshalBinary(data []byte) error {
	if err := msgpack.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal %s model: %w", Kind, err)
	}
	for ti, t := range m.Trees {
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= m.NFeatures ||
				n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("unmarshal %s model: tree %d node %d is malformed", Kind, ti, ni)
			}
		}
	}
	return nil
}

// decoders maps a Predictor kind to its decoder
var decoders = map[string]func([]byte) (contracts.Predictor, error){
	Kind: func(data []byte) (contracts.Predictor, error) {
		m := &Model{}
		if err := m.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return m, nil
	},
}

// Decode restores a Predictor from its kind tag and bytes
func Decode(kind string, data []byte) (contracts.Predictor, error) {
	dec, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
	return dec(data)
}
