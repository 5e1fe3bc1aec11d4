package block

import (
	"powchain/obj"
)

func (h *Header) serializeForTest() ([]byte, error) {
	return obj.Encode(h)
}
