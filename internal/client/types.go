package client

// UserResponse is the identity service's view of a user.
type UserResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	DepartmentID string   `json:"department_id"`
	Blocked      bool     `json:"blocked"`
}

// ListUsersResponse is returned by the users-by-role lookup.
type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
}

// PurchaseOrderLine is one line of a dispatched purchase order.
type PurchaseOrderLine struct {
	LineNumber  int    `json:"line_number"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	LineTotal   int64  `json:"line_total"`
}

// DispatchPurchaseOrderRequest hands an approved request to the vendors service.
type DispatchPurchaseOrderRequest struct {
	RequestID    string              `json:"request_id"`
	Reference    string              `json:"reference"`
	DepartmentID string              `json:"department_id"`
	Currency     string              `json:"currency"`
	Total        int64               `json:"total"`
	OfficerID    string              `json:"officer_id"`
	Lines        []PurchaseOrderLine `json:"lines"`
}

// DispatchPurchaseOrderResponse acknowledges a dispatch.
type DispatchPurchaseOrderResponse struct {
	PurchaseOrderID string `json:"purchase_order_id"`
	Status          string `json:"status"`
}
