package orders

// stage orders the forward path pending -> paid -> shipped -> delivered.
// Statuses not listed are pre-payment provider states (in_process, authorized, ...).
var stage = map[string]int{
	StatusPaid:      1,
	StatusApproved:  1,
	StatusShipped:   2,
	StatusDelivered: 3,
}

func stageOf(status string) int {
	return stage[status] // 0 for pending-like statuses
}

// CanTransition reports whether an order in current may move to next.
// Moves are forward only; paid and approved are the same stage. A cancelled
// order can still be confirmed: a declined attempt cancels it, but a later
// approved payment on the same order reference wins.
func CanTransition(current, next string) bool {
	if next == "" || current == next {
		return false
	}
	switch current {
	case StatusDelivered, StatusRefunded, StatusChargedBack:
		return false
	case StatusCancelled:
		return IsConfirmed(next)
	}
	switch next {
	case StatusCancelled:
		return true
	case StatusRefunded, StatusChargedBack:
		return stageOf(current) >= 1
	}
	cur, nxt := stageOf(current), stageOf(next)
	if cur == 0 && nxt == 0 {
		// pending <-> in_process and friends are lateral moves before payment
		return true
	}
	return nxt > cur
}
