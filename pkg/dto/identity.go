package dto

// IdentityResponse describes an enrolled identity without its feature vector.
type IdentityResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Dim         int    `json:"dim"`
	ImageKey    string `json:"image_key,omitempty"`
	CreatedAt   string `json:"created_at"`
	ProcessedAt string `json:"processed_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

type EnrollResponse struct {
	Identity IdentityResponse `json:"identity"`
	Quality  float32          `json:"quality"`
}
