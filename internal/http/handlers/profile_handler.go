// Profile, quota and document HTTP handlers.
//
//   - GET  /quota
//   - GET  /profile
//   - PUT  /profile
//   - POST /tutorial/complete
//   - GET  /documents/{filename}
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/counselor-chat/internal/documents"
	"github.com/tbourn/counselor-chat/internal/services"
)

const msgInvalidGrade = "Current grade must be 9, 10, 11, or 12"

// UpdateProfileRequest is the JSON payload for profile edits. Blank fields
// are cleared. current_grade accepts a number, a numeric string or null.
type UpdateProfileRequest struct {
	DisplayName  string          `json:"display_name" example:"Jordan"`
	CurrentGrade json.RawMessage `json:"current_grade" swaggertype:"integer" example:"11"`
	Bio          string          `json:"bio" example:"Robotics club, interested in engineering"`
}

// gradeText flattens the raw current_grade value for the service, which
// owns the validation. ok is false for shapes that can never be a grade.
func gradeText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// GetQuota godoc
// @ID          getQuota
// @Summary     Remaining messages today
// @Description remaining is null for the unlimited account.
// @Tags        Chat
// @Produce     json
// @Success     200  {object}  services.QuotaStatus
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage busy"
// @Router      /quota [get]
func (h *Handlers) GetQuota(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	st, err := h.quota.Status(c.Request.Context(), u.ID, u.Username)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Read the profile
// @Tags        Profile
// @Produce     json
// @Success     200  {object}  services.Profile
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Router      /profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	p, err := h.profile.Get(c.Request.Context(), u.ID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update the profile
// @Description Overwrites display name, current grade and bio; blank values clear a field.
// @Description An invalid grade is rejected and the stored profile stays unchanged.
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.UpdateProfileRequest  true  "Profile fields"
// @Success     200  {object}  services.Profile
// @Failure     400  {object}  handlers.ErrorResponse  "Current grade must be 9, 10, 11, or 12"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage busy"
// @Router      /profile [put]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	grade, valid := gradeText(req.CurrentGrade)
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidGrade)
		return
	}

	p, err := h.profile.Update(c.Request.Context(), u.ID, services.ProfileUpdate{
		DisplayName:  req.DisplayName,
		CurrentGrade: grade,
		Bio:          req.Bio,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidGrade) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, msgInvalidGrade)
			return
		}
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// CompleteTutorial godoc
// @ID          completeTutorial
// @Summary     Mark the onboarding tutorial as seen
// @Tags        Profile
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage busy"
// @Router      /tutorial/complete [post]
func (h *Handlers) CompleteTutorial(c *gin.Context) {
	u, found := currentUser(c)
	if !found {
		return
	}
	if err := h.profile.CompleteTutorial(c.Request.Context(), u.ID); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// GetDocument godoc
// @ID          getDocument
// @Summary     Download a school document
// @Description Serves a PDF from the documents directory. Only plain *.pdf file names are accepted.
// @Tags        Documents
// @Produce     application/pdf
// @Param       filename  path  string  true  "Document file name"  example(course_catalog.pdf)
// @Success     200  {file}    file
// @Failure     401  {object}  handlers.ErrorResponse  "Not signed in"
// @Failure     404  {object}  handlers.ErrorResponse  "Document not found"
// @Router      /documents/{filename} [get]
func (h *Handlers) GetDocument(c *gin.Context) {
	if _, found := currentUser(c); !found {
		return
	}
	path, err := h.docs.Path(c.Param("filename"))
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "document not found")
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}
