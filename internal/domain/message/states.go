package message

// Delivery states, in lifecycle order.
const (
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
)

var statusRank = map[string]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// StatusRank returns the position of a status in the SENT < DELIVERED < READ
// ordering, or -1 for an unknown status.
func StatusRank(status string) int {
	rank, ok := statusRank[status]
	if !ok {
		return -1
	}
	return rank
}

// PlaceholderContent is the summary text used for messages that carry only
// attachments.
const PlaceholderContent = "attachment"
