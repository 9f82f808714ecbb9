package models

import (
	"errors"
	"fmt"
	"strings"
)

// DeliveryStatus is the persisted lifecycle state of a delivery
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "PENDING"
	StatusAccepted  DeliveryStatus = "ACCEPTED"
	StatusInTransit DeliveryStatus = "IN_TRANSIT"
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusCancelled DeliveryStatus = "CANCELLED"
	StatusReturned  DeliveryStatus = "RETURNED"
)

var (
	// ErrUnknownStatus is returned for labels that are not delivery statuses at all
	ErrUnknownStatus = errors.New("unknown delivery status")
	// ErrDisplayOnlyStatus is returned for dashboard labels that are never persisted
	ErrDisplayOnlyStatus = errors.New("status label is display-only and cannot be stored")
)

// DeliveryStatuses lists every persisted status in lifecycle order
var DeliveryStatuses = []DeliveryStatus{
	StatusPending,
	StatusAccepted,
	StatusInTransit,
	StatusDelivered,
	StatusCancelled,
	StatusReturned,
}

// displayOnlyStatuses are labels used by dashboards that have no persisted counterpart
var displayOnlyStatuses = map[string]bool{
	"PICKED_UP":   true,
	"IN_PROGRESS": true,
}

// mainPath is the forward order of non-exceptional states
var mainPath = map[DeliveryStatus]int{
	StatusPending:   0,
	StatusAccepted:  1,
	StatusInTransit: 2,
	StatusDelivered: 3,
}

// ParseDeliveryStatus normalizes a status label, accepting any letter case
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	label := strings.ToUpper(strings.TrimSpace(value))
	if displayOnlyStatuses[label] {
		return "", fmt.Errorf("%w: %s", ErrDisplayOnlyStatus, label)
	}
	status := DeliveryStatus(label)
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
	return status, nil
}

// IsValid reports whether s is one of the persisted statuses
func (s DeliveryStatus) IsValid() bool {
	for _, status := range DeliveryStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusReturned
}

// RequiresAgent reports whether a delivery in status s must have an agent
func (s DeliveryStatus) RequiresAgent() bool {
	return s == StatusAccepted || s == StatusInTransit || s == StatusDelivered
}

// CanTransitionTo reports whether the strict state machine allows moving from s to next.
// The main path only moves one step forward; CANCELLED and RETURNED are reachable from
// any non-terminal state; a non-terminal state may be re-entered.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	if s == next {
		return true
	}
	if next == StatusCancelled || next == StatusReturned {
		return true
	}
	from, fromOK := mainPath[s]
	to, toOK := mainPath[next]
	return fromOK && toOK && to == from+1
}
