package dto

type GiftResponse struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	TotalQuantity    int64          `json:"totalQuantity"`
	ReservedQuantity int64          `json:"reservedQuantity"`
	Remaining        int64          `json:"remaining"`
	Status           string         `json:"status"`
	Details          map[string]any `json:"details,omitempty"`
	Version          int64          `json:"version"`
	UpdatedAt        string         `json:"updatedAt,omitempty"`
}

type CreateGiftRequest struct {
	Name          string         `json:"name"`
	TotalQuantity int64          `json:"totalQuantity"`
	Details       map[string]any `json:"details,omitempty"`
}

type UpdateGiftRequest struct {
	Name            *string        `json:"name,omitempty"`
	Details         map[string]any `json:"details,omitempty"`
	ExpectedVersion *int64         `json:"expectedVersion,omitempty"`
}

type GiftListResponse struct {
	Gifts      []GiftResponse `json:"gifts"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type ClaimGiftRequest struct {
	Quantity        int64  `json:"quantity,omitempty"`
	ClaimantContact string `json:"claimantContact,omitempty"`
	// IdempotencyKey may also arrive in the Idempotency-Key header.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type ReservationResponse struct {
	ClaimID         string `json:"claimId"`
	GiftID          string `json:"giftId"`
	QuantityClaimed int64  `json:"quantityClaimed"`
	ClaimantContact string `json:"claimantContact,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

type ClaimGiftResponse struct {
	Reservation ReservationResponse `json:"reservation"`
	Gift        GiftResponse        `json:"gift"`
	Replayed    bool                `json:"replayed"`
}

type UnclaimGiftResponse struct {
	Released *ReservationResponse `json:"released,omitempty"`
	Removed  bool                 `json:"removed"`
	Gift     GiftResponse         `json:"gift"`
}

type ReservationListResponse struct {
	Reservations []ReservationResponse `json:"reservations"`
}

type ReconcileResponse struct {
	GiftID       string `json:"giftId"`
	Total        int64  `json:"totalQuantity"`
	Reserved     int64  `json:"reservedQuantity"`
	LedgerSum    int64  `json:"ledgerSum"`
	Reservations int    `json:"reservations"`
	Consistent   bool   `json:"consistent"`
}
