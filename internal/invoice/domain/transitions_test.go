package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	statuses := []InvoiceStatus{
		InvoiceStatusDraft,
		InvoiceStatusSent,
		InvoiceStatusPaid,
		InvoiceStatusOverdue,
		InvoiceStatusCancelled,
	}

	allowed := map[InvoiceStatus]map[InvoiceStatus]bool{
		InvoiceStatusDraft:   {InvoiceStatusSent: true, InvoiceStatusCancelled: true},
		InvoiceStatusSent:    {InvoiceStatusPaid: true, InvoiceStatusOverdue: true, InvoiceStatusCancelled: true},
		InvoiceStatusOverdue: {InvoiceStatusPaid: true},
	}

	// Exhaustive over every ordered pair so terminal states stay terminal.
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[from][to]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
