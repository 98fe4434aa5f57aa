package dto

type TenantResponse struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status"`
	EventDate   string `json:"eventDate,omitempty"`
	Version     int64  `json:"version"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type CreateTenantRequest struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	EventDate   string `json:"eventDate,omitempty"`
}

// UpdateTenantRequest leaves absent fields unchanged. An empty eventDate
// clears the date.
type UpdateTenantRequest struct {
	DisplayName     *string `json:"displayName,omitempty"`
	EventDate       *string `json:"eventDate,omitempty"`
	ExpectedVersion *int64  `json:"expectedVersion,omitempty"`
}

type RenameSlugRequest struct {
	Slug            string `json:"slug"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

type SetTenantStatusRequest struct {
	Status          string `json:"status"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

type TenantListResponse struct {
	Tenants    []TenantResponse `json:"tenants"`
	NextCursor string           `json:"nextCursor,omitempty"`
}
