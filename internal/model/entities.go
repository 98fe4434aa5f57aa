package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Payload field names the storage layer itself depends on.
const (
	FieldSlug             = "slug"
	FieldDisplayName      = "displayName"
	FieldStatus           = "status"
	FieldEventDate        = "eventDate"
	FieldName             = "name"
	FieldTotalQuantity    = "totalQuantity"
	FieldReservedQuantity = "reservedQuantity"
	FieldAttendance       = "attendance"
	FieldGuestCount       = "guestCount"
	FieldGiftID           = "giftId"
	FieldClaimID          = "claimId"
	FieldQuantityClaimed  = "quantityClaimed"
	FieldClaimantContact  = "claimantContact"
)

const (
	TenantStatusDraft    = "draft"
	TenantStatusActive   = "active"
	TenantStatusArchived = "archived"

	AttendancePending   = "pending"
	AttendanceAttending = "attending"
	AttendanceDeclined  = "declined"

	GiftStatusAvailable     = "available"
	GiftStatusFullyReserved = "fully_reserved"
)

var statusValues = map[Kind]map[string]bool{
	KindTenant: {
		TenantStatusDraft:    true,
		TenantStatusActive:   true,
		TenantStatusArchived: true,
	},
	KindGuestResponse: {
		AttendancePending:   true,
		AttendanceAttending: true,
		AttendanceDeclined:  true,
	},
	KindGift: {
		GiftStatusAvailable:     true,
		GiftStatusFullyReserved: true,
	},
}

// StatusTracked reports whether records of kind are listed in the byStatus index.
func StatusTracked(kind Kind) bool {
	_, ok := statusValues[kind]
	return ok
}

func ValidStatus(kind Kind, status string) bool {
	return statusValues[kind][status]
}

// GiftStatus derives the byStatus value of a gift from its counters.
func GiftStatus(reserved, total int64) string {
	if reserved >= total {
		return GiftStatusFullyReserved
	}
	return GiftStatusAvailable
}

// Int64Field reads a whole number from a payload regardless of how it was decoded.
func Int64Field(p map[string]any, field string) (int64, bool) {
	v, ok := p[field]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func StringField(p map[string]any, field string) string {
	s, _ := p[field].(string)
	return s
}

type Tenant struct {
	ID          string
	Slug        string
	DisplayName string
	Status      string
	EventDate   string
	Version     int64
	CreatedAt   string
	UpdatedAt   string
}

func TenantFromItem(item Item) (Tenant, error) {
	if item.Kind != KindTenant {
		return Tenant{}, fmt.Errorf("item %s/%s is %s, not a tenant", item.PK, item.SK, item.Kind)
	}
	return Tenant{
		ID:          item.TenantID,
		Slug:        StringField(item.Payload, FieldSlug),
		DisplayName: StringField(item.Payload, FieldDisplayName),
		Status:      StringField(item.Payload, FieldStatus),
		EventDate:   StringField(item.Payload, FieldEventDate),
		Version:     item.Version,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}

type Gift struct {
	ID               string
	TenantID         string
	Name             string
	TotalQuantity    int64
	ReservedQuantity int64
	Payload          map[string]any
	Version          int64
	UpdatedAt        string
}

func (g Gift) Remaining() int64 {
	return g.TotalQuantity - g.ReservedQuantity
}

func (g Gift) Status() string {
	return GiftStatus(g.ReservedQuantity, g.TotalQuantity)
}

func GiftFromItem(item Item) (Gift, error) {
	if item.Kind != KindGift {
		return Gift{}, fmt.Errorf("item %s/%s is %s, not a gift", item.PK, item.SK, item.Kind)
	}
	total, ok := Int64Field(item.Payload, FieldTotalQuantity)
	if !ok {
		return Gift{}, fmt.Errorf("gift %s: missing %s", item.EntityID, FieldTotalQuantity)
	}
	reserved, _ := Int64Field(item.Payload, FieldReservedQuantity)
	return Gift{
		ID:               item.EntityID,
		TenantID:         item.TenantID,
		Name:             StringField(item.Payload, FieldName),
		TotalQuantity:    total,
		ReservedQuantity: reserved,
		Payload:          item.Payload,
		Version:          item.Version,
		UpdatedAt:        item.UpdatedAt,
	}, nil
}

type Reservation struct {
	TenantID        string
	GiftID          string
	ClaimID         string
	QuantityClaimed int64
	ClaimantContact string
	CreatedAt       string
}

func ReservationFromItem(item Item) (Reservation, error) {
	if item.Kind != KindReservation {
		return Reservation{}, fmt.Errorf("item %s/%s is %s, not a reservation", item.PK, item.SK, item.Kind)
	}
	qty, ok := Int64Field(item.Payload, FieldQuantityClaimed)
	if !ok {
		return Reservation{}, fmt.Errorf("reservation %s: missing %s", item.EntityID, FieldQuantityClaimed)
	}
	return Reservation{
		TenantID:        item.TenantID,
		GiftID:          StringField(item.Payload, FieldGiftID),
		ClaimID:         StringField(item.Payload, FieldClaimID),
		QuantityClaimed: qty,
		ClaimantContact: StringField(item.Payload, FieldClaimantContact),
		CreatedAt:       item.CreatedAt,
	}, nil
}

// Item renders the reservation as the append-only ledger row.
func (r Reservation) Item() Item {
	key := ReservationKey(r.TenantID, r.GiftID, r.ClaimID)
	return Item{
		PK:       key.PK,
		SK:       key.SK,
		Kind:     KindReservation,
		TenantID: r.TenantID,
		EntityID: ReservationEntityID(r.GiftID, r.ClaimID),
		Payload: map[string]any{
			FieldGiftID:          r.GiftID,
			FieldClaimID:         r.ClaimID,
			FieldQuantityClaimed: r.QuantityClaimed,
			FieldClaimantContact: r.ClaimantContact,
		},
		Version:   1,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.CreatedAt,
	}
}
