package sync

import (
	"encoding/json"
	"net/http"
	"strings"

	"chatsync/database"

	"gorm.io/gorm"
)

type memberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// AddMember invites an email address into a space. The member record is
// created (or revived) first so a provider failure leaves a pending row an
// operator can see.
//
//	@Summary      Invite a member into a space
//	@Accept       json
//	@Produce      json
//	@Param        space_uuid path string true "Space UUID"
//	@Router       /api/v1/sync/spaces/{space_uuid}/members [post]
func (h *SyncHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	space, ok := h.spaceFromPath(w, r)
	if !ok {
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var member database.Member
	q := h.DB.Where("space_id = ? AND email = ?", space.ID, email).First(&member)
	if q.Error != nil {
		member = database.Member{
			SpaceID: space.ID,
			Email:   email,
			State:   database.MemberStatePending,
		}
		if req.Role != "" {
			member.Role = req.Role
		}
		if q := h.DB.Create(&member); q.Error != nil {
			h.Logger.Error("creating member record", "email", email, "error", q.Error)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		h.linkContact(&member)
	}

	if err := h.Mapper.InviteMember(r.Context(), member.ID); err != nil {
		writeMapperError(w, h.Logger, "member invite", err)
		return
	}

	h.DB.First(&member, member.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}

// RemoveMember removes a member from a space.
//
//	@Summary      Remove a member from a space
//	@Param        space_uuid path string true "Space UUID"
//	@Param        member_uuid path string true "Member UUID"
//	@Router       /api/v1/sync/spaces/{space_uuid}/members/{member_uuid} [delete]
func (h *SyncHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	space, ok := h.spaceFromPath(w, r)
	if !ok {
		return
	}

	memberUUID := r.PathValue("member_uuid")
	var member database.Member
	q := h.DB.Where("uuid = ? AND space_id = ?", memberUUID, space.ID).First(&member)
	if q.Error != nil {
		http.Error(w, "Member not found", http.StatusNotFound)
		return
	}

	if err := h.Mapper.RemoveMember(r.Context(), member.ID); err != nil {
		writeMapperError(w, h.Logger, "member removal", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *SyncHandler) spaceFromPath(w http.ResponseWriter, r *http.Request) (*database.Space, bool) {
	spaceUUID := r.PathValue("space_uuid")
	if spaceUUID == "" {
		http.Error(w, "Invalid space UUID", http.StatusBadRequest)
		return nil, false
	}

	var space database.Space
	if q := h.DB.Where("uuid = ?", spaceUUID).First(&space); q.Error != nil {
		http.Error(w, "Space not found", http.StatusNotFound)
		return nil, false
	}
	return &space, true
}

// linkContact attaches an existing contact with the same email, if any.
func (h *SyncHandler) linkContact(member *database.Member) {
	var contact database.Contact
	q := h.DB.Where("email = ?", member.Email).First(&contact)
	if q.Error != nil {
		if q.Error != gorm.ErrRecordNotFound {
			h.Logger.Warn("contact lookup failed", "email", member.Email, "error", q.Error)
		}
		return
	}
	h.DB.Model(member).Update("contact_id", contact.ID)
}
