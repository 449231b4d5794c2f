package domain

// validTransitions is the invoice status graph. Paid and cancelled are
// terminal; there are no self-loops.
var validTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:     {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:      {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue:   {InvoiceStatusPaid, InvoiceStatusCancelled},
	InvoiceStatusPaid:      {},
	InvoiceStatusCancelled: {},
}

// IsValidStatus reports whether s is a known invoice status.
func IsValidStatus(s InvoiceStatus) bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to InvoiceStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks a requested status change and returns the
// specific rejection for the paid-cancellation case.
func ValidateTransition(from, to InvoiceStatus) error {
	if !IsValidStatus(to) {
		return ErrInvalidStatus
	}
	if from == InvoiceStatusPaid && to == InvoiceStatusCancelled {
		return ErrCannotCancelPaid
	}
	if !CanTransition(from, to) {
		return ErrInvalidStatusTransition
	}
	return nil
}

// ValidateUpdate rejects field mutations on terminal invoices.
func ValidateUpdate(status InvoiceStatus) error {
	switch status {
	case InvoiceStatusPaid:
		return ErrCannotUpdatePaid
	case InvoiceStatusCancelled:
		return ErrCannotUpdateCancelled
	}
	return nil
}

// ValidateDelete allows soft deletion only from draft or cancelled.
func ValidateDelete(status InvoiceStatus) error {
	switch status {
	case InvoiceStatusDraft, InvoiceStatusCancelled:
		return nil
	}
	return ErrInvoiceNotDeletable
}
