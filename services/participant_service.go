package services

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/utils"
)

// ParticipantService memegang membership, approval dan invariant single-host.
// Semua mutasi mengambil row lock di baris sesi lebih dulu sehingga cek
// kapasitas, join dan reassignment host tidak bisa saling balapan.
type ParticipantService struct {
	DB  *gorm.DB
	Hub realtime.Publisher
}

func NewParticipantService(db *gorm.DB, hub realtime.Publisher) *ParticipantService {
	return &ParticipantService{DB: db, Hub: hub}
}

type JoinInput struct {
	DisplayName string
	GuestPhone  *string
	GuestName   *string
	Notes       string
}

// JoinCheck -> hasil preview can_join tanpa mutasi
type JoinCheck struct {
	CanJoin bool   `json:"can_join"`
	Reason  string `json:"reason,omitempty"`
}

// CheckJoin -> preview apakah share code masih bisa menerima participant
func (s *ParticipantService) CheckJoin(shareCode string) (*JoinCheck, error) {
	code := strings.ToUpper(strings.TrimSpace(shareCode))
	if !utils.IsValidShareCode(code) {
		return nil, utils.NewValidationError("share code must be %d alphanumeric characters", utils.ShareCodeLength)
	}

	var session models.CollabSession
	err := s.DB.Scopes(models.LiveSessions).Where("share_code = ?", code).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &JoinCheck{CanJoin: false, Reason: "no live session with this share code"}, nil
		}
		return nil, err
	}

	if session.Status != models.SessionStatusActive {
		return &JoinCheck{CanJoin: false, Reason: "session is " + session.Status}, nil
	}

	count, err := s.occupiedSeats(s.DB, session.ID)
	if err != nil {
		return nil, err
	}
	if count >= int64(session.MaxParticipants) {
		return &JoinCheck{CanJoin: false, Reason: "session is full"}, nil
	}
	return &JoinCheck{CanJoin: true}, nil
}

// Join -> masuk ke sesi lewat share code. Participant pertama otomatis host;
// sisanya pending saat require_approval, selain itu langsung active.
func (s *ParticipantService) Join(shareCode string, in JoinInput) (*models.SessionParticipant, *models.CollabSession, error) {
	code := strings.ToUpper(strings.TrimSpace(shareCode))
	if !utils.IsValidShareCode(code) {
		return nil, nil, utils.NewValidationError("share code must be %d alphanumeric characters", utils.ShareCodeLength)
	}
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.DisplayName == "" {
		return nil, nil, utils.NewValidationError("display_name is required")
	}

	var (
		participant models.SessionParticipant
		session     models.CollabSession
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := utils.WithRowLock(tx.Scopes(models.LiveSessions)).
			Where("share_code = ?", code).
			First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NewNotFoundError("no live session with share code %s", code)
			}
			return err
		}

		// Lock membekukan join baru; hanya sesi active yang menerima
		if session.Status != models.SessionStatusActive {
			return utils.NewConflictError("session is %s and does not accept new participants", session.Status)
		}

		count, err := s.occupiedSeats(tx, session.ID)
		if err != nil {
			return err
		}
		if count >= int64(session.MaxParticipants) {
			return utils.NewConflictError("session is full (%d/%d participants)", count, session.MaxParticipants)
		}

		var activeCount int64
		if err := tx.Model(&models.SessionParticipant{}).
			Where("session_id = ? AND status = ?", session.ID, models.ParticipantStatusActive).
			Count(&activeCount).Error; err != nil {
			return err
		}

		now := time.Now()
		participant = models.SessionParticipant{
			SessionID:    session.ID,
			DisplayName:  in.DisplayName,
			Role:         models.ParticipantRoleMember,
			Status:       models.ParticipantStatusActive,
			GuestPhone:   in.GuestPhone,
			GuestName:    in.GuestName,
			Notes:        in.Notes,
			JoinedAt:     now,
			LastActivity: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if activeCount == 0 {
			// First joiner becomes host
			participant.Role = models.ParticipantRoleHost
		} else if session.RequireApproval {
			participant.Status = models.ParticipantStatusPending
		}

		return tx.Create(&participant).Error
	})
	if err != nil {
		return nil, nil, err
	}

	publish(s.Hub, realtime.SessionKey(session.ID), realtime.Event{
		Type: realtime.EventParticipantJoined,
		Data: participant,
	})
	return &participant, &session, nil
}

// Approve -> host menerima participant pending
func (s *ParticipantService) Approve(sessionID, actorID, participantID uint) (*models.SessionParticipant, error) {
	return s.resolvePending(sessionID, actorID, participantID,
		models.ParticipantStatusActive, realtime.EventParticipantApproved)
}

// Reject -> host menolak participant pending
func (s *ParticipantService) Reject(sessionID, actorID, participantID uint) (*models.SessionParticipant, error) {
	return s.resolvePending(sessionID, actorID, participantID,
		models.ParticipantStatusRejected, realtime.EventParticipantRejected)
}

func (s *ParticipantService) resolvePending(sessionID, actorID, participantID uint, target, eventType string) (*models.SessionParticipant, error) {
	var participant models.SessionParticipant

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireActiveHost(tx, session.ID, actorID); err != nil {
			return err
		}

		if err := s.findInSession(tx, session.ID, participantID, &participant); err != nil {
			return err
		}
		if participant.Status != models.ParticipantStatusPending {
			return utils.NewConflictError("participant %q is %s, only pending participants can be resolved",
				participant.DisplayName, participant.Status)
		}

		if target == models.ParticipantStatusActive {
			count, err := s.occupiedSeats(tx, session.ID)
			if err != nil {
				return err
			}
			if count > int64(session.MaxParticipants) {
				return utils.NewConflictError("session is full (%d/%d participants)", count, session.MaxParticipants)
			}
		}

		participant.Status = target
		participant.UpdatedAt = time.Now()
		return tx.Save(&participant).Error
	})
	if err != nil {
		return nil, err
	}

	publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: eventType,
		Data: participant,
	})
	return &participant, nil
}

// Leave -> participant keluar; kalau yang keluar host, host pindah ke
// participant aktif dengan joined_at paling awal
func (s *ParticipantService) Leave(sessionID, participantID uint) (*models.SessionParticipant, error) {
	return s.depart(sessionID, participantID, realtime.EventParticipantLeft)
}

// RemoveAsStaff -> restaurant staff mengeluarkan participant tanpa jadi
// participant sesi; efeknya sama dengan leave
func (s *ParticipantService) RemoveAsStaff(sessionID, participantID uint) (*models.SessionParticipant, error) {
	return s.depart(sessionID, participantID, realtime.EventParticipantRemoved)
}

// Remove -> host mengeluarkan participant; efeknya sama dengan leave
func (s *ParticipantService) Remove(sessionID, actorID, participantID uint) (*models.SessionParticipant, error) {
	if actorID == participantID {
		return nil, utils.NewValidationError("use leave to exit your own session")
	}

	var (
		removed   *models.SessionParticipant
		successor *models.SessionParticipant
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if err := requireActiveHost(tx, session.ID, actorID); err != nil {
			return err
		}
		removed, successor, err = s.departLocked(tx, session, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: realtime.EventParticipantRemoved,
		Data: removed,
	})
	if successor != nil {
		publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
			Type: realtime.EventHostChanged,
			Data: successor,
		})
	}
	return removed, nil
}

func (s *ParticipantService) depart(sessionID, participantID uint, eventType string) (*models.SessionParticipant, error) {
	var (
		departed  *models.SessionParticipant
		successor *models.SessionParticipant
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		session, err := s.lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		departed, successor, err = s.departLocked(tx, session, participantID)
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: eventType,
		Data: departed,
	})
	if successor != nil {
		publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
			Type: realtime.EventHostChanged,
			Data: successor,
		})
	}
	return departed, nil
}

// departLocked -> status=left plus reassignment host dalam transaksi caller.
// Successor non-nil kalau hostship berpindah.
func (s *ParticipantService) departLocked(tx *gorm.DB, session *models.CollabSession, participantID uint) (*models.SessionParticipant, *models.SessionParticipant, error) {
	var participant models.SessionParticipant
	if err := s.findInSession(tx, session.ID, participantID, &participant); err != nil {
		return nil, nil, err
	}
	if participant.Status == models.ParticipantStatusLeft {
		return nil, nil, utils.NewConflictError("participant %q already left", participant.DisplayName)
	}

	wasHost := participant.IsActiveHost()
	now := time.Now()
	participant.Status = models.ParticipantStatusLeft
	participant.Role = models.ParticipantRoleMember
	participant.UpdatedAt = now
	if err := tx.Save(&participant).Error; err != nil {
		return nil, nil, err
	}

	if !wasHost {
		return &participant, nil, nil
	}

	// Longest-tenured active member takes over; tie-break earliest joined_at
	var successor models.SessionParticipant
	err := tx.Where("session_id = ? AND status = ?", session.ID, models.ParticipantStatusActive).
		Order("joined_at asc, id asc").
		First(&successor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Sesi kosong; sweep abandonment yang membatalkan setelah grace period
		return &participant, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	successor.Role = models.ParticipantRoleHost
	successor.UpdatedAt = now
	if err := tx.Save(&successor).Error; err != nil {
		return nil, nil, err
	}
	return &participant, &successor, nil
}

// Touch -> update last_activity participant
func (s *ParticipantService) Touch(participantID uint) error {
	return s.DB.Model(&models.SessionParticipant{}).
		Where("id = ?", participantID).
		Update("last_activity", time.Now()).Error
}

// List -> semua participant sebuah sesi
func (s *ParticipantService) List(sessionID uint) ([]models.SessionParticipant, error) {
	var participants []models.SessionParticipant
	err := s.DB.Where("session_id = ?", sessionID).
		Order("joined_at asc").
		Find(&participants).Error
	return participants, err
}

func (s *ParticipantService) lockSession(tx *gorm.DB, sessionID uint) (*models.CollabSession, error) {
	var session models.CollabSession
	if err := utils.WithRowLock(tx).First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("session %d not found", sessionID)
		}
		return nil, err
	}
	if session.IsArchived {
		return nil, utils.NewConflictError("session %d is archived", sessionID)
	}
	return &session, nil
}

func (s *ParticipantService) findInSession(tx *gorm.DB, sessionID, participantID uint, out *models.SessionParticipant) error {
	if err := tx.First(out, participantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("participant %d not found", participantID)
		}
		return err
	}
	if out.SessionID != sessionID {
		return utils.NewNotFoundError("participant %d does not belong to session %d", participantID, sessionID)
	}
	return nil
}

// occupiedSeats -> active + pending menghitung ke kapasitas supaya approve
// tidak bisa melewati max_participants
func (s *ParticipantService) occupiedSeats(tx *gorm.DB, sessionID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.SessionParticipant{}).
		Where("session_id = ? AND status IN ?", sessionID,
			[]string{models.ParticipantStatusActive, models.ParticipantStatusPending}).
		Count(&count).Error
	return count, err
}

// requireActiveHost dipakai lintas service untuk aksi host-only
func requireActiveHost(tx *gorm.DB, sessionID, participantID uint) error {
	var p models.SessionParticipant
	if err := tx.First(&p, participantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("participant %d not found", participantID)
		}
		return err
	}
	if p.SessionID != sessionID {
		return utils.NewNotFoundError("participant %d does not belong to session %d", participantID, sessionID)
	}
	if !p.IsActiveHost() {
		return utils.NewAuthorizationError("participant %q is not the session host", p.DisplayName)
	}
	return nil
}
