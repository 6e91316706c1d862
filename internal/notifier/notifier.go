package notifier

// Notification is one domain event published to operators.
type Notification struct {
	Topic string
	Data  map[string]any
}

// Emit sends without blocking; a slow or absent consumer never stalls a
// message handler.
func Emit(ch chan<- Notification, topic string, data map[string]any) {
	if ch == nil {
		return
	}
	select {
	case ch <- Notification{Topic: topic, Data: data}:
	default:
	}
}
