package shared

import (
	"fmt"
	"time"
)

// Approval is a single signature on a document. An approver signs a document at most once.
type Approval struct {
	ID            int64     `json:"id"`
	DocumentID    int64     `json:"document_id"`
	ApproverID    int64     `json:"approver_id"`
	ApproverName  string    `json:"approver_name,omitempty"`
	SignaturePath string    `json:"signature_path"`
	ApprovedAt    time.Time `json:"approved_at"`
}

// Quorum is the number of distinct approvers needed to cross a document threshold.
type Quorum int

const (
	// PurchaseOrderQuorum fully approves a purchase order.
	PurchaseOrderQuorum Quorum = 3
	// DeliveryOrderQuorum completes a delivery order.
	DeliveryOrderQuorum Quorum = 4
)

// Reached reports whether count distinct approvals satisfy the quorum.
func (q Quorum) Reached(count int) bool {
	return count >= int(q)
}

// ApprovalProgress is returned by every approve call so the caller can show remaining work.
type ApprovalProgress struct {
	Approvals int    `json:"approvals"`
	Required  int    `json:"required"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// NewApprovalProgress formats the "(n/q approvals)" feedback.
func NewApprovalProgress(document string, count int, q Quorum, status string) ApprovalProgress {
	return ApprovalProgress{
		Approvals: count,
		Required:  int(q),
		Status:    status,
		Message:   fmt.Sprintf("%s approved successfully (%d/%d approvals)", document, count, int(q)),
	}
}

// HasApproved reports whether approverID already signed.
func HasApproved(approvals []Approval, approverID int64) bool {
	for _, a := range approvals {
		if a.ApproverID == approverID {
			return true
		}
	}
	return false
}
