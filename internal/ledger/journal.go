package ledger

// journal collects undo steps for the mutations of a single operation so the
// whole operation can be reverted if a later step fails.
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}
