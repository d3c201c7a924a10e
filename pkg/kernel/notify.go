package kernel

// PostNotification posts notificationBit to task i's pending set and
// wakes it if it is blocked in a matching Recv.
// Used by pkg/irq's interrupt dispatch and by Post, which is why it is
// exported; timer expiry in ProcessTimers calls deliverNotification
// directly instead.
func (ts *TaskSet) PostNotification(i int, notificationBit uint32) RescheduleHint {
	t := ts.Tasks[i]
	t.NotificationsPosted |= notificationBit

	if t.State.Status != Healthy || t.State.Sched.Kind != InRecv {
		return HintSame()
	}
	if !deliverNotification(t) {
		return HintSame()
	}
	return HintSpecific(i)
}
