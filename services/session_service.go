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

const shareCodeAttempts = 5

// SessionService memegang lifecycle CollabSession. Semua mutasi berjalan dalam
// satu transaksi dan mengambil row lock di baris sesi lebih dulu, sehingga
// operasi pada sesi yang sama terserialisasi.
type SessionService struct {
	DB  *gorm.DB
	Hub realtime.Publisher
}

func NewSessionService(db *gorm.DB, hub realtime.Publisher) *SessionService {
	return &SessionService{DB: db, Hub: hub}
}

type CreateSessionInput struct {
	RestaurantID        uint
	TableID             *uint
	TableNumber         string
	HostName            string
	SessionType         string
	MaxParticipants     int
	RequireApproval     bool
	SplitPaymentEnabled bool
}

// Create -> buka sesi baru di satu meja; pembuat langsung jadi host.
// Invariant "one table, one live session" dicek di bawah lock.
func (s *SessionService) Create(in CreateSessionInput) (*models.CollabSession, *models.SessionParticipant, error) {
	in.HostName = strings.TrimSpace(in.HostName)
	if in.HostName == "" {
		return nil, nil, utils.NewValidationError("host_name is required")
	}
	if in.TableNumber = strings.TrimSpace(in.TableNumber); in.TableNumber == "" {
		return nil, nil, utils.NewValidationError("table_number is required")
	}
	if in.SessionType == "" {
		in.SessionType = models.SessionTypeCollaborative
	}
	if in.SessionType != models.SessionTypeCollaborative && in.SessionType != models.SessionTypeIndividual {
		return nil, nil, utils.NewValidationError("session_type must be collaborative or individual, got %q", in.SessionType)
	}
	if in.MaxParticipants == 0 {
		in.MaxParticipants = models.DefaultMaxParticipants
	}
	if in.MaxParticipants < models.MinParticipants || in.MaxParticipants > models.MaxParticipantsCeiling {
		return nil, nil, utils.NewValidationError("max_participants must be between %d and %d, got %d",
			models.MinParticipants, models.MaxParticipantsCeiling, in.MaxParticipants)
	}

	var (
		session     models.CollabSession
		participant models.SessionParticipant
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// Lock sesi live di meja ini; hanya boleh ada satu
		var existing models.CollabSession
		err := utils.WithRowLock(tx.Scopes(models.LiveSessions)).
			Where("restaurant_id = ? AND table_number = ? AND status IN ?",
				in.RestaurantID, in.TableNumber, models.LiveStatuses).
			First(&existing).Error
		if err == nil {
			return utils.NewConflictError("table %s already has a live session (share code %s)",
				in.TableNumber, existing.ShareCode)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		code, err := s.uniqueShareCode(tx)
		if err != nil {
			return err
		}

		now := time.Now()
		session = models.CollabSession{
			RestaurantID:        in.RestaurantID,
			TableID:             in.TableID,
			TableNumber:         in.TableNumber,
			ShareCode:           code,
			SessionType:         in.SessionType,
			Status:              models.SessionStatusActive,
			HostName:            in.HostName,
			MaxParticipants:     in.MaxParticipants,
			RequireApproval:     in.RequireApproval,
			SplitPaymentEnabled: in.SplitPaymentEnabled,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}

		participant = models.SessionParticipant{
			SessionID:    session.ID,
			DisplayName:  in.HostName,
			Role:         models.ParticipantRoleHost,
			Status:       models.ParticipantStatusActive,
			JoinedAt:     now,
			LastActivity: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.Create(&participant).Error
	})
	if err != nil {
		return nil, nil, err
	}

	publish(s.Hub, realtime.SessionKey(session.ID), realtime.Event{
		Type: realtime.EventSessionCreated,
		Data: session,
	})
	return &session, &participant, nil
}

// uniqueShareCode -> share code unik di antara sesi non-archived;
// kode boleh dipakai ulang setelah sesi diarsip
func (s *SessionService) uniqueShareCode(tx *gorm.DB) (string, error) {
	for i := 0; i < shareCodeAttempts; i++ {
		code := utils.GenerateShareCode()
		var count int64
		if err := tx.Model(&models.CollabSession{}).
			Scopes(models.LiveSessions).
			Where("share_code = ?", code).
			Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", utils.NewConflictError("could not allocate a unique share code, retry")
}

// Get -> sesi apapun termasuk archived (scope "all")
func (s *SessionService) Get(sessionID uint) (*models.CollabSession, error) {
	var session models.CollabSession
	if err := s.DB.Preload("Participants").First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("session %d not found", sessionID)
		}
		return nil, err
	}
	return &session, nil
}

// GetByShareCode -> hanya sesi live (scope "live"); dipakai klien sebagai
// snapshot call setelah (re)connect
func (s *SessionService) GetByShareCode(code string) (*models.CollabSession, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !utils.IsValidShareCode(code) {
		return nil, utils.NewValidationError("share code must be %d alphanumeric characters", utils.ShareCodeLength)
	}

	var session models.CollabSession
	err := s.DB.Scopes(models.LiveSessions).
		Preload("Participants", "status IN ?", []string{models.ParticipantStatusActive, models.ParticipantStatusPending}).
		Where("share_code = ?", code).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("no live session with share code %s", code)
		}
		return nil, err
	}
	return &session, nil
}

// Lock -> host membekukan join baru dan kontribusi cart member
func (s *SessionService) Lock(sessionID, actorParticipantID uint) (*models.CollabSession, error) {
	return s.transition(sessionID, &actorParticipantID, models.SessionStatusLocked, realtime.EventSessionLocked)
}

// Unlock -> host membuka kembali sesi yang terkunci
func (s *SessionService) Unlock(sessionID, actorParticipantID uint) (*models.CollabSession, error) {
	return s.transition(sessionID, &actorParticipantID, models.SessionStatusActive, realtime.EventSessionUnlocked)
}

// Complete -> host menutup sesi secara eksplisit; gagal kalau masih ada
// order yang belum selesai dibayar/disajikan
func (s *SessionService) Complete(sessionID, actorParticipantID uint) (*models.CollabSession, error) {
	var session *models.CollabSession
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if err := s.requireHost(tx, locked, actorParticipantID); err != nil {
			return err
		}

		var open int64
		if err := tx.Model(&models.Order{}).
			Where("collab_session_id = ?", sessionID).
			Where("payment_status <> ? AND status NOT IN ?",
				models.PaymentStatusPaid,
				[]string{models.OrderStatusServed, models.OrderStatusCompleted, models.OrderStatusCancelled}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return utils.NewConflictError("session %d still has %d unsettled order(s)", sessionID, open)
		}

		session, err = s.applyTransition(tx, locked, models.SessionStatusCompleted)
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: realtime.EventSessionCompleted,
		Data: session,
	})
	return session, nil
}

// Cancel -> pembatalan paksa oleh host; actor nil berarti sistem (timeout policy)
func (s *SessionService) Cancel(sessionID uint, actorParticipantID *uint) (*models.CollabSession, error) {
	return s.transition(sessionID, actorParticipantID, models.SessionStatusCancelled, realtime.EventSessionCancelled)
}

// transition -> satu langkah state machine dalam satu transaksi
func (s *SessionService) transition(sessionID uint, actorParticipantID *uint, target, eventType string) (*models.CollabSession, error) {
	var session *models.CollabSession
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		locked, err := s.lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		if actorParticipantID != nil {
			if err := s.requireHost(tx, locked, *actorParticipantID); err != nil {
				return err
			}
		}
		session, err = s.applyTransition(tx, locked, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(s.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: eventType,
		Data: session,
	})
	return session, nil
}

// lockSession -> baca baris sesi dengan SELECT FOR UPDATE
func (s *SessionService) lockSession(tx *gorm.DB, sessionID uint) (*models.CollabSession, error) {
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

// requireHost -> actor harus participant aktif ber-role host di sesi ini
func (s *SessionService) requireHost(tx *gorm.DB, session *models.CollabSession, participantID uint) error {
	var p models.SessionParticipant
	if err := tx.First(&p, participantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("participant %d not found", participantID)
		}
		return err
	}
	if p.SessionID != session.ID {
		return utils.NewNotFoundError("participant %d does not belong to session %d", participantID, session.ID)
	}
	if !p.IsActiveHost() {
		return utils.NewAuthorizationError("participant %q is not the session host", p.DisplayName)
	}
	return nil
}

// applyTransition -> validasi tabel transisi dan simpan timestamp lifecycle
func (s *SessionService) applyTransition(tx *gorm.DB, session *models.CollabSession, target string) (*models.CollabSession, error) {
	if session.Status == target {
		return nil, utils.NewConflictError("session %d is already %s", session.ID, target)
	}
	if !session.CanTransitionTo(target) {
		return nil, utils.NewConflictError("invalid session transition: current status is %s, requested %s",
			session.Status, target)
	}

	now := time.Now()
	session.Status = target
	session.UpdatedAt = now
	switch target {
	case models.SessionStatusLocked:
		session.LockedAt = &now
	case models.SessionStatusCompleted, models.SessionStatusCancelled:
		session.CompletedAt = &now
	}

	if err := tx.Save(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

// StartPayment dipanggil internal (cart submit) saat split payment aktif
func startPayment(tx *gorm.DB, session *models.CollabSession) error {
	if session.Status == models.SessionStatusPayment {
		return nil
	}
	if !session.CanTransitionTo(models.SessionStatusPayment) {
		return utils.NewConflictError("invalid session transition: current status is %s, requested %s",
			session.Status, models.SessionStatusPayment)
	}
	session.Status = models.SessionStatusPayment
	session.UpdatedAt = time.Now()
	return tx.Save(session).Error
}
