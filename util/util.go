package util

// AsyncNotify wakes a waiter on ch without blocking. Notifications
// coalesce, so ch should have a buffer of one.
func AsyncNotify(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
