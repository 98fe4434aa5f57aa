package dto

type EntryResponse struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Version   int64          `json:"version"`
	CreatedAt string         `json:"createdAt,omitempty"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

type PutEntryRequest struct {
	Payload         map[string]any `json:"payload"`
	ExpectedVersion *int64         `json:"expectedVersion,omitempty"`
}

type EntryListResponse struct {
	Entries    []EntryResponse `json:"entries"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

type SubmitRSVPRequest struct {
	ResponseID string `json:"responseId,omitempty"`
	Name       string `json:"name"`
	Attendance string `json:"attendance"`
	GuestCount int64  `json:"guestCount,omitempty"`
	Message    string `json:"message,omitempty"`
}

type PublicSiteResponse struct {
	Slug        string                   `json:"slug"`
	DisplayName string                   `json:"displayName"`
	EventDate   string                   `json:"eventDate,omitempty"`
	Settings    map[string]EntryResponse `json:"settings"`
	Schedule    []EntryResponse          `json:"schedule"`
	Gallery     []EntryResponse          `json:"gallery"`
}
