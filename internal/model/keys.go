package model

import (
	"errors"
	"fmt"
	"strings"
)

const keySeparator = "#"

var (
	ErrInvalidID   = errors.New("model: invalid id")
	ErrInvalidSlug = errors.New("model: invalid slug")
)

// ValidateID rejects ids that would break key composition.
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}
	if strings.Contains(id, keySeparator) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidID, id, keySeparator)
	}
	return nil
}

// ValidateEntityID validates an entity id for kind. Reservation ids are the
// composite produced by ReservationEntityID.
func ValidateEntityID(kind Kind, id string) error {
	if kind != KindReservation {
		return ValidateID(id)
	}
	giftID, claimID, ok := SplitReservationEntityID(id)
	if !ok {
		return fmt.Errorf("%w: reservation id %q", ErrInvalidID, id)
	}
	if err := ValidateID(giftID); err != nil {
		return err
	}
	return ValidateID(claimID)
}

// PartitionKey is the partition shared by every record a tenant owns.
func PartitionKey(tenantID string) string {
	return string(KindTenant) + keySeparator + tenantID
}

func SortKeyFor(kind Kind, entityID string) string {
	return string(kind) + keySeparator + entityID
}

// SortKeyPrefix narrows a tenant partition to one kind.
func SortKeyPrefix(kind Kind) string {
	return string(kind) + keySeparator
}

func KeyFor(tenantID string, kind Kind, entityID string) Key {
	return Key{
		PK: PartitionKey(tenantID),
		SK: SortKeyFor(kind, entityID),
	}
}

func TenantKey(tenantID string) Key {
	return KeyFor(tenantID, KindTenant, tenantID)
}

func ReservationEntityID(giftID, claimID string) string {
	return giftID + keySeparator + claimID
}

func SplitReservationEntityID(id string) (giftID, claimID string, ok bool) {
	parts := strings.Split(id, keySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func ReservationKey(tenantID, giftID, claimID string) Key {
	return KeyFor(tenantID, KindReservation, ReservationEntityID(giftID, claimID))
}

// ReservationPrefix selects every reservation recorded against one gift.
func ReservationPrefix(giftID string) string {
	return SortKeyPrefix(KindReservation) + giftID + keySeparator
}

func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// ValidateSlug accepts lowercase letters, digits and inner hyphens.
func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > 64 {
		return fmt.Errorf("%w: length", ErrInvalidSlug)
	}
	for i, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' && i > 0 && i < len(slug)-1:
		default:
			return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
		}
	}
	return nil
}

func SlugPartition(slug string) string {
	return string(KindSlug) + keySeparator + slug
}

// SlugKeys are the bySlug index keys carried by a tenant record.
func SlugKeys(slug, tenantID string) (pk, sk string) {
	return SlugPartition(slug), PartitionKey(tenantID)
}

// SlugMarkerKey addresses the record whose existence claims a slug.
func SlugMarkerKey(slug string) Key {
	p := SlugPartition(slug)
	return Key{PK: p, SK: p}
}

func StatusPartition(kind Kind, status string) string {
	return string(kind) + keySeparator + status
}

// StatusKeys are the byStatus index keys. The sort key leads with the tenant
// so one tenant's slice of a status is a prefix range.
func StatusKeys(kind Kind, status, tenantID, entityID string) (pk, sk string) {
	return StatusPartition(kind, status), StatusTenantPrefix(tenantID) + entityID
}

func StatusTenantPrefix(tenantID string) string {
	return tenantID + keySeparator
}
