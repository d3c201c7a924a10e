package kernel

// SetTimer implements the SetTimer syscall: arm or disarm the calling
// task's independent wake-up timer. A nil deadline
// (enable=false) clears it; otherwise the task wakes (or, if already
// blocked in a matching Recv, is woken immediately by the next
// TaskSet.ProcessTimers call once now has passed deadline) carrying
// notif in its notification mask.
func (ts *TaskSet) SetTimer(callerIdx int, enable bool, deadline uint64, notif uint32) {
	t := ts.Tasks[callerIdx]
	if !enable {
		t.Timer = TaskTimer{}
		return
	}
	t.Timer = TaskTimer{Deadline: deadline, NotificationMask: notif}
}

// TimerStatus is the GetTimer syscall's result; the dispatcher in
// pkg/trapentry returns it in the caller's A0-A3 rather than through an
// out_struct_ptr.
type TimerStatus struct {
	Enabled          bool
	Deadline         uint64
	NotificationMask uint32
}

// GetTimer implements the GetTimer syscall: report the calling task's
// currently-armed timer, if any.
func (ts *TaskSet) GetTimer(callerIdx int) TimerStatus {
	t := ts.Tasks[callerIdx]
	if t.Timer.Deadline == 0 {
		return TimerStatus{}
	}
	return TimerStatus{Enabled: true, Deadline: t.Timer.Deadline, NotificationMask: t.Timer.NotificationMask}
}
