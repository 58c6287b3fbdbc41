package dto

import "github.com/your-org/presence/internal/models"

type CreateFacultyRequest struct {
	Name       string `json:"name" binding:"required"`
	Department string `json:"department"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// UpdateFacultyRequest changes only the fields that are set.
type UpdateFacultyRequest struct {
	Name       *string `json:"name"`
	Department *string `json:"department"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
}

type FacultyListResponse struct {
	Faculty []models.Faculty `json:"faculty"`
	Total   int              `json:"total"`
}
