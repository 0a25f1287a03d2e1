package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/utils"
)

func TestJoinBySharedCode(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, _ := seedSession(t, sessions, CreateSessionInput{})

	check, err := participants.CheckJoin(session.ShareCode)
	assert.NoError(t, err)
	assert.True(t, check.CanJoin)

	member := joinAs(t, participants, session.ShareCode, "Budi")
	assert.Equal(t, models.ParticipantRoleMember, member.Role)
	assert.Equal(t, models.ParticipantStatusActive, member.Status)

	// Share code tidak case-sensitive
	other, _, err := participants.Join("  "+session.ShareCode+" ", JoinInput{DisplayName: "Citra"})
	assert.NoError(t, err)
	assert.Equal(t, session.ID, other.SessionID)
}

func TestJoinRequiresApproval(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{RequireApproval: true})

	pending, _, err := participants.Join(session.ShareCode, JoinInput{DisplayName: "Budi"})
	assert.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusPending, pending.Status)

	// Participant pending tidak bisa menggunakan cart
	cart := NewCartService(db, nil)
	menu := seedMenu(t, db, "Nasi Goreng", 25000, 10)
	_, err = cart.AddItem(session.ID, pending.ID, AddItemInput{MenuID: menu.ID, Quantity: 1})
	assert.Error(t, err)

	approved, err := participants.Approve(session.ID, host.ID, pending.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusActive, approved.Status)

	// Approve ulang -> konflik (bukan pending lagi)
	_, err = participants.Approve(session.ID, host.ID, pending.ID)
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestRejectPendingParticipant(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{RequireApproval: true})
	pending, _, err := participants.Join(session.ShareCode, JoinInput{DisplayName: "Budi"})
	assert.NoError(t, err)

	rejected, err := participants.Reject(session.ID, host.ID, pending.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusRejected, rejected.Status)
}

func TestApproveIsHostOnly(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, _ := seedSession(t, sessions, CreateSessionInput{RequireApproval: true})

	pending, _, err := participants.Join(session.ShareCode, JoinInput{DisplayName: "Citra"})
	assert.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusPending, pending.Status)

	_, err = participants.Approve(session.ID, pending.ID, pending.ID)
	assert.Error(t, err)
}

func TestJoinCapacity(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, _ := seedSession(t, sessions, CreateSessionInput{MaxParticipants: 2})

	joinAs(t, participants, session.ShareCode, "Budi")

	check, err := participants.CheckJoin(session.ShareCode)
	assert.NoError(t, err)
	assert.False(t, check.CanJoin)
	assert.Equal(t, "session is full", check.Reason)

	_, _, err = participants.Join(session.ShareCode, JoinInput{DisplayName: "Citra"})
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestJoinFrozenWhileLocked(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	_, err := sessions.Lock(session.ID, host.ID)
	assert.NoError(t, err)

	check, err := participants.CheckJoin(session.ShareCode)
	assert.NoError(t, err)
	assert.False(t, check.CanJoin)

	_, _, err = participants.Join(session.ShareCode, JoinInput{DisplayName: "Budi"})
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestHostLeaveReassignsEarliestJoiner(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	second := joinAs(t, participants, session.ShareCode, "Budi")
	third := joinAs(t, participants, session.ShareCode, "Citra")

	departed, err := participants.Leave(session.ID, host.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusLeft, departed.Status)
	assert.Equal(t, models.ParticipantRoleMember, departed.Role)

	// Host berpindah ke joiner paling awal yang masih aktif
	var reloadedSecond models.SessionParticipant
	assert.NoError(t, db.First(&reloadedSecond, second.ID).Error)
	assert.Equal(t, models.ParticipantRoleHost, reloadedSecond.Role)

	var reloadedThird models.SessionParticipant
	assert.NoError(t, db.First(&reloadedThird, third.ID).Error)
	assert.Equal(t, models.ParticipantRoleMember, reloadedThird.Role)
}

func TestRemoveParticipant(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{})
	member := joinAs(t, participants, session.ShareCode, "Budi")

	// Member tidak boleh mengeluarkan orang lain
	_, err := participants.Remove(session.ID, member.ID, host.ID)
	assert.Error(t, err)

	removed, err := participants.Remove(session.ID, host.ID, member.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ParticipantStatusLeft, removed.Status)

	// Remove diri sendiri diarahkan ke leave
	_, err = participants.Remove(session.ID, host.ID, host.ID)
	assert.Error(t, err)

	// Remove dua kali -> konflik
	_, err = participants.RemoveAsStaff(session.ID, member.ID)
	var conflict *utils.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

// Single-host invariant di bawah konkurensi: host keluar sementara ada join
// baru; setelah semua selesai tepat satu host aktif tersisa.
func TestConcurrentLeaveAndJoinKeepsSingleHost(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionService(db, nil)
	participants := NewParticipantService(db, nil)

	session, host := seedSession(t, sessions, CreateSessionInput{MaxParticipants: 10})
	joinAs(t, participants, session.ShareCode, "Budi")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		participants.Leave(session.ID, host.ID)
	}()
	go func() {
		defer wg.Done()
		participants.Join(session.ShareCode, JoinInput{DisplayName: "Citra"})
	}()
	wg.Wait()

	var hosts int64
	assert.NoError(t, db.Model(&models.SessionParticipant{}).
		Where("session_id = ? AND role = ? AND status = ?",
			session.ID, models.ParticipantRoleHost, models.ParticipantStatusActive).
		Count(&hosts).Error)
	assert.Equal(t, int64(1), hosts)
}
