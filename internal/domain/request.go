package domain

import (
	"math"
	"time"

	"github.com/pesio-ai/be-proc-requests/internal/common/errors"
)

// CombinedReferencePrefix marks the reference code of a combined parent.
const CombinedReferencePrefix = "CMB-"

// Request is a procurement request. Monetary amounts are minor units of
// Currency.
type Request struct {
	ID               string     `json:"id"`
	Reference        string     `json:"reference"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	DepartmentID     string     `json:"department_id"`
	RequesterID      string     `json:"requester_id"`
	Currency         string     `json:"currency"`
	ProcurementTypes []string   `json:"procurement_types"`
	Items            []LineItem `json:"items"`
	TotalEstimated   int64      `json:"total_estimated"`
	Status           Status     `json:"status"`
	AssigneeID       *string    `json:"assignee_id,omitempty"`

	IsCombined        bool     `json:"is_combined"`
	CombinedRequestID *string  `json:"combined_request_id,omitempty"`
	MemberRequestIDs  []string `json:"member_request_ids,omitempty"`

	RequiresExecutiveApproval bool `json:"requires_executive_approval"`
	// ExecutiveReviewed is set once the request enters EXECUTIVE_REVIEW and
	// never cleared. From then on the threshold decision and items are frozen.
	ExecutiveReviewed bool  `json:"executive_reviewed"`
	ResubmissionCount int   `json:"resubmission_count"`
	Version           int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineItem is one priced line of a request. SourceRequestID points at the
// request the line came from when it belongs to a combined parent.
type LineItem struct {
	ID              string  `json:"id"`
	RequestID       string  `json:"request_id"`
	SourceRequestID *string `json:"source_request_id,omitempty"`
	LineNumber      int     `json:"line_number"`
	Description     string  `json:"description"`
	Quantity        int64   `json:"quantity"`
	UnitPrice       int64   `json:"unit_price"`
	LineTotal       int64   `json:"line_total"`
}

// ItemsEditable reports whether line items may still change: the status
// allows it and no executive has reviewed the request.
func (r *Request) ItemsEditable() bool {
	return r.Status.IsEditable() && !r.ExecutiveReviewed
}

// IsMember reports whether r has been folded into a combined parent.
func (r *Request) IsMember() bool {
	return r.CombinedRequestID != nil && *r.CombinedRequestID != ""
}

// IsAssignee reports whether actorID is the current assignee.
func (r *Request) IsAssignee(actorID string) bool {
	return r.AssigneeID != nil && *r.AssigneeID == actorID
}

// MultiplyLine returns quantity × unitPrice, failing instead of wrapping.
func MultiplyLine(quantity, unitPrice int64) (int64, error) {
	if quantity <= 0 {
		return 0, errors.InvalidInput("quantity", "must be positive")
	}
	if unitPrice < 0 {
		return 0, errors.InvalidInput("unit_price", "cannot be negative")
	}
	if unitPrice != 0 && quantity > math.MaxInt64/unitPrice {
		return 0, errors.InvalidInput("unit_price", "line total overflows")
	}
	return quantity * unitPrice, nil
}

// RecalculateTotal derives every LineTotal and TotalEstimated from quantity
// and unit price. It is the only place TotalEstimated is computed.
func (r *Request) RecalculateTotal() error {
	var total int64
	for i := range r.Items {
		line, err := MultiplyLine(r.Items[i].Quantity, r.Items[i].UnitPrice)
		if err != nil {
			return err
		}
		if total > math.MaxInt64-line {
			return errors.InvalidInput("items", "request total overflows")
		}
		r.Items[i].LineTotal = line
		r.Items[i].LineNumber = i + 1
		total += line
	}
	r.TotalEstimated = total
	return nil
}

// Clone returns a deep copy so callers can mutate a candidate without
// touching the loaded original.
func (r *Request) Clone() *Request {
	c := *r
	c.Items = append([]LineItem(nil), r.Items...)
	c.ProcurementTypes = append([]string(nil), r.ProcurementTypes...)
	c.MemberRequestIDs = append([]string(nil), r.MemberRequestIDs...)
	if r.AssigneeID != nil {
		id := *r.AssigneeID
		c.AssigneeID = &id
	}
	if r.CombinedRequestID != nil {
		id := *r.CombinedRequestID
		c.CombinedRequestID = &id
	}
	return &c
}
