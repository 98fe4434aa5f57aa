package model

const (
	SiteTable = "WeddingSite"

	BySlugIndex   = "bySlug"
	ByStatusIndex = "byStatus"
)

const (
	AttrPK        = "pk"
	AttrSK        = "sk"
	AttrGSI1PK    = "gsi1pk"
	AttrGSI1SK    = "gsi1sk"
	AttrGSI2PK    = "gsi2pk"
	AttrGSI2SK    = "gsi2sk"
	AttrKind      = "kind"
	AttrTenantID  = "tenantId"
	AttrEntityID  = "entityId"
	AttrPayload   = "payload"
	AttrVersion   = "version"
	AttrCreatedAt = "createdAt"
	AttrUpdatedAt = "updatedAt"
)

type Kind string

const (
	KindTenant        Kind = "TENANT"
	KindAdminUser     Kind = "ADMIN_USER"
	KindGuestResponse Kind = "GUEST_RESPONSE"
	KindGift          Kind = "GIFT"
	KindReservation   Kind = "RESERVATION"
	KindSettings      Kind = "SETTINGS"
	KindGalleryImage  Kind = "GALLERY_IMAGE"
	KindScheduleEvent Kind = "SCHEDULE_EVENT"

	// KindSlug marks the uniqueness record that owns a slug. It never lives
	// inside a tenant partition.
	KindSlug Kind = "SLUG"
)

var entityKinds = map[Kind]bool{
	KindTenant:        true,
	KindAdminUser:     true,
	KindGuestResponse: true,
	KindGift:          true,
	KindReservation:   true,
	KindSettings:      true,
	KindGalleryImage:  true,
	KindScheduleEvent: true,
}

// Valid reports whether k is a tenant-owned entity kind.
func (k Kind) Valid() bool {
	return entityKinds[k]
}

type Key struct {
	PK string `dynamodbav:"pk"`
	SK string `dynamodbav:"sk"`
}

// Item is the single persisted shape of every record in the site table.
// Payload is schema-less; numbers read back from storage decode as float64.
type Item struct {
	PK        string         `dynamodbav:"pk"`
	SK        string         `dynamodbav:"sk"`
	GSI1PK    string         `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK    string         `dynamodbav:"gsi1sk,omitempty"`
	GSI2PK    string         `dynamodbav:"gsi2pk,omitempty"`
	GSI2SK    string         `dynamodbav:"gsi2sk,omitempty"`
	Kind      Kind           `dynamodbav:"kind"`
	TenantID  string         `dynamodbav:"tenantId"`
	EntityID  string         `dynamodbav:"entityId"`
	Payload   map[string]any `dynamodbav:"payload"`
	Version   int64          `dynamodbav:"version"`
	CreatedAt string         `dynamodbav:"createdAt"`
	UpdatedAt string         `dynamodbav:"updatedAt"`
}

func (i Item) Key() Key {
	return Key{PK: i.PK, SK: i.SK}
}

// Clone returns a copy whose payload map can be mutated independently.
func (i Item) Clone() Item {
	out := i
	out.Payload = ClonePayload(i.Payload)
	return out
}

func ClonePayload(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
