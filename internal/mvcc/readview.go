package mvcc

// ReadView is a snapshot descriptor: a pure value deciding, for any
// writer transaction id, whether that writer's effects are visible.
// It carries no side effects and no behavior beyond Visible, per the
// engine's design guidance to avoid inheritance or dynamic dispatch
// for this concern.
type ReadView struct {
	VisibleUpTo uint64
	ActiveSet   map[uint64]struct{}
	OwnTxID     *uint64
}

// Visible reports whether txID's writes should be observed under this
// view: either it is the view's own transaction, or it committed
// before the view was taken and was not still active at that instant.
func (v ReadView) Visible(txID uint64) bool {
	if v.OwnTxID != nil && txID == *v.OwnTxID {
		return true
	}
	if txID >= v.VisibleUpTo {
		return false
	}
	_, active := v.ActiveSet[txID]
	return !active
}

// maximalView sees every committed version regardless of the active
// set; used for legacy scans (catalog backfill, information_schema
// counts) where snapshot isolation is not required.
func maximalView() ReadView {
	return ReadView{VisibleUpTo: ^uint64(0)}
}
