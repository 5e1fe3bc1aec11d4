package tx

import (
	"powchain/obj"
)

func decodeInto(src, dst obj.Serializable) error {
	bz, err := obj.Encode(src)
	if err != nil {
		return err
	}
	return obj.Decode(bz, dst)
}
