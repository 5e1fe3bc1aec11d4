package tx

import (
	"powchain/ec"
	"powchain/util"
)

// SpentOutput records an output consumed by a transaction so it can be restored.
type SpentOutput struct {
	OutPoint OutPoint
	Entry    UtxoEntry
}

// UndoEntry holds the outputs one transaction spent, in input order.
type UndoEntry []SpentOutput

// ValidateStructure runs the context-free checks.
func ValidateStructure(t *Transaction) error {
	if len(t.Outputs) == 0 {
		return newError(ErrMalformedTransaction, -1, "no outputs")
	}
	if len(t.Inputs) == 0 {
		return newError(ErrMalformedTransaction, -1, "no inputs")
	}
	if len(t.Inputs) > MaxTxInputs || len(t.Outputs) > MaxTxOutputs {
		return newError(ErrMalformedTransaction, -1, "too many inputs or outputs")
	}
	if len(t.Signature) > MaxSignatureSize {
		return newError(ErrMalformedTransaction, -1, "signature too long")
	}

	if t.IsCoinbase() {
		if len(t.Inputs[0].ScriptSig) < 8 || len(t.Inputs[0].ScriptSig) > MaxScriptSigSize {
			return newError(ErrMalformedTransaction, 0, "coinbase scriptsig length %d", len(t.Inputs[0].ScriptSig))
		}
	} else {
		seen := make(map[OutPoint]struct{}, len(t.Inputs))
		for i := range t.Inputs {
			in := &t.Inputs[i]
			if in.PrevOut.IsNull() {
				return newError(ErrMalformedTransaction, i, "coinbase marker in a regular transaction")
			}
			if len(in.ScriptSig) > MaxScriptSigSize {
				return newError(ErrMalformedTransaction, i, "scriptsig too long")
			}
			if _, dup := seen[in.PrevOut]; dup {
				return newError(ErrDoubleSpend, i, "outpoint %s spent twice", in.PrevOut)
			}
			seen[in.PrevOut] = struct{}{}
		}
	}

	for i := range t.Outputs {
		if len(t.Outputs[i].Script) > MaxScriptSize {
			return newError(ErrMalformedTransaction, i, "script too long")
		}
	}
	if _, ok := t.OutputSum(); !ok {
		return newError(ErrMalformedTransaction, -1, "output value out of range")
	}

	if t.Hash() != t.ComputeHash() {
		return newError(ErrInvalidHash, -1, "cached hash %s does not match contents", t.Hash().Short())
	}
	return nil
}

// ValidateAgainstUtxo checks a regular transaction against view and returns
// its fee. Coinbase transactions are checked by block validation and yield 0.
func ValidateAgainstUtxo(t *Transaction, view *UtxoView, verifier ec.SigVerifier) (uint64, error) {
	if t.IsCoinbase() {
		return 0, nil
	}

	var msg ec.Hash256
	if verifier != nil {
		msg = t.SigHash()
	}

	var inSum uint64
	for i := range t.Inputs {
		in := &t.Inputs[i]
		entry, ok := view.Get(in.PrevOut)
		if !ok {
			if view.IsSpent(in.PrevOut) {
				return 0, newError(ErrDoubleSpend, i, "outpoint %s already spent", in.PrevOut)
			}
			return 0, newError(ErrMissingOutput, i, "outpoint %s not found", in.PrevOut)
		}

		if verifier != nil && !verifier.Verify(entry.Output.Script, msg[:], in.ScriptSig) {
			return 0, newError(ErrInvalidSignature, i, "scriptsig does not satisfy script")
		}

		if inSum+entry.Output.Value < inSum || inSum+entry.Output.Value > MaxMoney {
			return 0, newError(ErrMalformedTransaction, i, "input value out of range")
		}
		inSum += entry.Output.Value
	}

	outSum, ok := t.OutputSum()
	if !ok {
		return 0, newError(ErrMalformedTransaction, -1, "output value out of range")
	}
	if inSum < outSum {
		return 0, newError(ErrInsufficientFunds, -1, "inputs %d < outputs %d", inSum, outSum)
	}
	return inSum - outSum, nil
}

// Apply spends the inputs of t and adds its outputs, created at height.
// The transaction must already have passed ValidateAgainstUtxo on view.
func Apply(t *Transaction, view *UtxoView, height uint64) UndoEntry {
	var undo UndoEntry
	coinbase := t.IsCoinbase()
	if !coinbase {
		undo = make(UndoEntry, 0, len(t.Inputs))
		for i := range t.Inputs {
			op := t.Inputs[i].PrevOut
			entry, ok := view.Spend(op)
			util.Assert(ok)
			undo = append(undo, SpentOutput{OutPoint: op, Entry: entry})
		}
	}

	hash := t.Hash()
	for i := range t.Outputs {
		view.Add(NewOutPoint(hash, uint32(i)), UtxoEntry{
			Output:   t.Outputs[i],
			Height:   height,
			Coinbase: coinbase,
		})
	}
	return undo
}

// Undo reverts Apply: the outputs of t disappear and the spent outputs come back.
func Undo(t *Transaction, view *UtxoView, undo UndoEntry) {
	hash := t.Hash()
	for i := len(t.Outputs) - 1; i >= 0; i-- {
		_, ok := view.remove(NewOutPoint(hash, uint32(i)), false)
		util.Assert(ok)
	}
	for i := len(undo) - 1; i >= 0; i-- {
		view.Add(undo[i].OutPoint, undo[i].Entry)
	}
}
