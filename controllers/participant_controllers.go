package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/services"
	"github.com/Fingerliing/payquick-sub001/utils"
)

type ParticipantController struct {
	Participants *services.ParticipantService
}

func NewParticipantController(participants *services.ParticipantService) *ParticipantController {
	return &ParticipantController{Participants: participants}
}

// CheckJoin -> preview can_join tanpa mutasi, untuk layar join
func (pc *ParticipantController) CheckJoin(c *gin.Context) {
	check, err := pc.Participants.CheckJoin(c.Param("share_code"))
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Join check", check)
}

// Join -> masuk sesi lewat share code; response membawa guest token
func (pc *ParticipantController) Join(c *gin.Context) {
	type request struct {
		DisplayName string  `json:"display_name" binding:"required"`
		GuestPhone  *string `json:"guest_phone"`
		GuestName   *string `json:"guest_name"`
		Notes       string  `json:"notes"`
	}

	var req request
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	participant, session, err := pc.Participants.Join(c.Param("share_code"), services.JoinInput{
		DisplayName: req.DisplayName,
		GuestPhone:  req.GuestPhone,
		GuestName:   req.GuestName,
		Notes:       req.Notes,
	})
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	token, err := utils.GenerateGuestToken(participant.ID, session.ID)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Joined session", gin.H{
		"session":     session,
		"participant": participant,
		"token":       token,
	})
}

// ListParticipants -> semua participant sesi
func (pc *ParticipantController) ListParticipants(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if _, _, err := guestContext(c, sessionID); err != nil {
		utils.RespondAppError(c, err)
		return
	}

	participants, err := pc.Participants.List(sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Participants", participants)
}

// Approve -> host menerima participant pending
func (pc *ParticipantController) Approve(c *gin.Context) {
	pc.resolvePending(c, pc.Participants.Approve, "Participant approved")
}

// Reject -> host menolak participant pending
func (pc *ParticipantController) Reject(c *gin.Context) {
	pc.resolvePending(c, pc.Participants.Reject, "Participant rejected")
}

// Leave -> participant keluar dari sesinya sendiri
func (pc *ParticipantController) Leave(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	participantID, staff, err := guestContext(c, sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if staff {
		utils.RespondAppError(c, utils.NewValidationError("staff accounts are not session participants"))
		return
	}

	participant, err := pc.Participants.Leave(sessionID, participantID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Left session", participant)
}

// Heartbeat -> klien menandai dirinya masih hadir
func (pc *ParticipantController) Heartbeat(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	participantID, staff, err := guestContext(c, sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if staff {
		utils.RespondAppError(c, utils.NewValidationError("staff accounts are not session participants"))
		return
	}

	if err := pc.Participants.Touch(participantID); err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Heartbeat recorded", gin.H{"participant_id": participantID})
}

// Remove -> host (atau staff) mengeluarkan participant
func (pc *ParticipantController) Remove(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	targetID, err := paramUint(c, "participant_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	actorID, staff, err := guestContext(c, sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	var participant interface{}
	if staff {
		participant, err = pc.Participants.RemoveAsStaff(sessionID, targetID)
	} else {
		participant, err = pc.Participants.Remove(sessionID, actorID, targetID)
	}
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Participant removed", participant)
}

func (pc *ParticipantController) resolvePending(c *gin.Context,
	fn func(sessionID, actorID, participantID uint) (*models.SessionParticipant, error), message string) {

	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	targetID, err := paramUint(c, "participant_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	actorID, staff, err := guestContext(c, sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	if staff {
		utils.RespondAppError(c, utils.NewAuthorizationError("approval belongs to the session host"))
		return
	}

	participant, err := fn(sessionID, actorID, targetID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, message, participant)
}
