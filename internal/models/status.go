package models

import (
	"strings"
	"unicode"
)

// Status: закрытый набор статусов, общий для ledger, claims и отчётов.
type Status string

const (
	StatusPending             Status = "Pending"
	StatusInChinaWarehouse    Status = "In China Warehouse"
	StatusOnWayToWarehouse    Status = "On Way to Warehouse"
	StatusReceivedAtWarehouse Status = "Received at Warehouse"
	StatusInTransit           Status = "In Transit"
	StatusDelivered           Status = "Delivered"
	StatusOnReturn            Status = "On Return"
)

// AllStatuses lists every variant in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusInChinaWarehouse,
	StatusOnWayToWarehouse,
	StatusReceivedAtWarehouse,
	StatusInTransit,
	StatusDelivered,
	StatusOnReturn,
}

// legacyStatuses maps squashed spellings (lower case, no punctuation or spaces)
// seen in old snapshots and on the remote backend.
var legacyStatuses = map[string]Status{
	"pending":             StatusPending,
	"new":                 StatusPending,
	"created":             StatusPending,
	"unknown":             StatusPending,
	"inchinawarehouse":    StatusInChinaWarehouse,
	"chinawarehouse":      StatusInChinaWarehouse,
	"atoriginwarehouse":   StatusInChinaWarehouse,
	"onwaytowarehouse":    StatusOnWayToWarehouse,
	"enroutetowarehouse":  StatusOnWayToWarehouse,
	"receivedatwarehouse": StatusReceivedAtWarehouse,
	"received":            StatusReceivedAtWarehouse,
	"intransit":           StatusInTransit,
	"transit":             StatusInTransit,
	"shipped":             StatusInTransit,
	"delivered":           StatusDelivered,
	"onreturn":            StatusOnReturn,
	"returned":            StatusOnReturn,
	"returning":           StatusOnReturn,
	"returntosender":      StatusOnReturn,
}

// ParseStatus maps any external or legacy status label onto the enumeration.
// Unrecognised labels become StatusReceivedAtWarehouse with ok=false.
func ParseStatus(raw string) (Status, bool) {
	for _, s := range AllStatuses {
		if raw == string(s) {
			return s, true
		}
	}
	if st, ok := legacyStatuses[squash(raw)]; ok {
		return st, true
	}
	return StatusReceivedAtWarehouse, false
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Terminal reports whether no further status changes are expected.
func (s Status) Terminal() bool {
	return s == StatusDelivered
}

// Narrative returns the human readable explanation shown in status reports.
func (s Status) Narrative() string {
	switch s {
	case StatusDelivered:
		return "Your package has been delivered."
	case StatusInTransit:
		return "Your package is en route to its destination."
	case StatusPending:
		return "Your package is pending processing at the facility."
	case StatusOnReturn:
		return "Your package is being returned to the sender."
	case StatusInChinaWarehouse:
		return "Your package is at the origin warehouse awaiting shipping."
	case StatusOnWayToWarehouse:
		return "Your package is en route to the warehouse."
	default:
		return "Your package is being received by the warehouse."
	}
}

func (s Status) String() string { return string(s) }
