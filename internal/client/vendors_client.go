package client

import (
	"context"
	"fmt"
	"time"

	"github.com/pesio-ai/be-proc-requests/internal/common/httpclient"
	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// VendorsClient is a client for the vendors service
type VendorsClient struct {
	client *httpclient.Client
}

// NewVendorsClient creates a new vendors service client
func NewVendorsClient(baseURL string, timeout time.Duration) *VendorsClient {
	return &VendorsClient{
		client: httpclient.NewClient(baseURL, timeout),
	}
}

// DispatchPurchaseOrder sends a request that reached SENT_TO_VENDOR to the
// vendors service as a purchase order.
func (c *VendorsClient) DispatchPurchaseOrder(ctx context.Context, req *domain.Request) (string, error) {
	body := DispatchPurchaseOrderRequest{
		RequestID:    req.ID,
		Reference:    req.Reference,
		DepartmentID: req.DepartmentID,
		Currency:     req.Currency,
		Total:        req.TotalEstimated,
		Lines:        make([]PurchaseOrderLine, 0, len(req.Items)),
	}
	if req.AssigneeID != nil {
		body.OfficerID = *req.AssigneeID
	}
	for _, it := range req.Items {
		body.Lines = append(body.Lines, PurchaseOrderLine{
			LineNumber:  it.LineNumber,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			LineTotal:   it.LineTotal,
		})
	}

	var resp DispatchPurchaseOrderResponse
	if err := c.client.Post(ctx, "/api/v1/purchase-orders/dispatch", body, &resp); err != nil {
		return "", fmt.Errorf("failed to dispatch purchase order: %w", err)
	}
	return resp.PurchaseOrderID, nil
}
