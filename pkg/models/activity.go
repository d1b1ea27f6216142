package models

import "time"

// ActivityType tags an audit log entry.
type ActivityType string

const (
	ActivitySale     ActivityType = "sale"
	ActivityPayment  ActivityType = "payment"
	ActivityCustomer ActivityType = "customer"
)

// MaxActivityEntries bounds the audit log; older entries are dropped.
const MaxActivityEntries = 500

// Activity is an append-only audit log entry.
type Activity struct {
	ID   string            `json:"id"`
	Type ActivityType      `json:"type"`
	Text string            `json:"text"`
	Meta map[string]string `json:"meta"`
	Date time.Time         `json:"date"`
}
