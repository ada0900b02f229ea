package handler

import "crossdock/internal/inventory/models"

type reserveRequest struct {
	ShipmentRef string `json:"shipment_ref"`
	Quantity    int    `json:"quantity"`
}

type reserveBatchRequest struct {
	ShipmentRef string             `json:"shipment_ref"`
	Items       []batchItemRequest `json:"items"`
}

type batchItemRequest struct {
	ProductID     string `json:"product_id"`
	WarehouseCode string `json:"warehouse_code"`
	Quantity      int    `json:"quantity"`
}

type recordResponse struct {
	models.InventoryRecord
	AvailableQuantity int `json:"available_quantity"`
}

func toRecordResponses(records []models.InventoryRecord) []recordResponse {
	out := make([]recordResponse, len(records))
	for i, r := range records {
		out[i] = recordResponse{InventoryRecord: r, AvailableQuantity: r.AvailableQuantity()}
	}
	return out
}

type listInventoryResponse struct {
	Records []recordResponse `json:"records"`
}

type ledgerResponse struct {
	Entries []models.LedgerEntry `json:"entries"`
}

type holdResponse struct {
	Hold models.ReservationHold `json:"hold"`
}

type holdsResponse struct {
	Holds []models.ReservationHold `json:"holds"`
}

type confirmResponse struct {
	Confirmed int `json:"confirmed"`
}

type releaseResponse struct {
	Released int `json:"released"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
