package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Fingerliing/payquick-sub001/utils"
)

func paramUint(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		return 0, utils.NewValidationError("invalid %s: %q", name, c.Param(name))
	}
	return uint(v), nil
}

func isStaff(role string) bool {
	return role == "admin" || role == "staff"
}

// guestContext -> participant actor dari claims; guest hanya boleh menyentuh
// sesinya sendiri
func guestContext(c *gin.Context, sessionID uint) (participantID uint, staff bool, err error) {
	role, _ := c.Get("role")
	roleStr, _ := role.(string)

	if isStaff(roleStr) {
		return 0, true, nil
	}

	claimSession, _ := c.Get("session_id")
	claimParticipant, _ := c.Get("participant_id")
	sid, _ := claimSession.(uint)
	pid, _ := claimParticipant.(uint)

	if sid == 0 || pid == 0 {
		return 0, false, utils.NewAuthorizationError("a session token is required")
	}
	if sid != sessionID {
		return 0, false, utils.NewAuthorizationError("token does not belong to session %d", sessionID)
	}
	return pid, false, nil
}
