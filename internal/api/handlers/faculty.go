package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/roster"
	"github.com/your-org/presence/pkg/dto"
)

type FacultyHandler struct {
	roster *roster.Roster
}

func NewFacultyHandler(r *roster.Roster) *FacultyHandler {
	return &FacultyHandler{roster: r}
}

// List returns the roster, optionally narrowed with ?status=present|absent.
func (h *FacultyHandler) List(c *gin.Context) {
	var list []models.Faculty
	switch models.PresenceStatus(c.Query("status")) {
	case "":
		list = h.roster.ListIdentities()
	case models.PresenceStatusPresent:
		list = h.roster.Present()
	case models.PresenceStatusAbsent:
		list = h.roster.Absent()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	respondFaculty(c, list)
}

func (h *FacultyHandler) Search(c *gin.Context) {
	respondFaculty(c, h.roster.Search(c.Query("q")))
}

func (h *FacultyHandler) Get(c *gin.Context) {
	f, err := h.roster.Get(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *FacultyHandler) Create(c *gin.Context) {
	var req dto.CreateFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := h.roster.Add(c.Request.Context(), models.Faculty{
		Name:       req.Name,
		Department: req.Department,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

// Update patches a member by numeric id. The route shares the :name segment
// with Get and Delete.
func (h *FacultyHandler) Update(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid faculty id"})
		return
	}

	var req dto.UpdateFacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := h.roster.Update(c.Request.Context(), id, roster.Patch{
		Name:       req.Name,
		Department: req.Department,
		Email:      req.Email,
		Phone:      req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *FacultyHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	if err := h.roster.Delete(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

func respondFaculty(c *gin.Context, list []models.Faculty) {
	if list == nil {
		list = []models.Faculty{}
	}
	c.JSON(http.StatusOK, dto.FacultyListResponse{Faculty: list, Total: len(list)})
}
