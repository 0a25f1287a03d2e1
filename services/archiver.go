package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/utils"
)

// Default windows untuk kebijakan arsip
const (
	DefaultArchiveGrace  = 5 * time.Minute
	DefaultEmptyGrace    = 10 * time.Minute
	DefaultAbandonAfter  = 12 * time.Hour
	DefaultRetention     = 30 * 24 * time.Hour
	archiveSweepBatchMax = 200
)

// Archiver -> kebijakan arsip murni dan idempotent, dipanggil scheduler
// eksternal (cron) atau endpoint admin. Arsip adalah filter visibility,
// bukan delete; hard delete baru terjadi setelah retention lewat.
type Archiver struct {
	DB  *gorm.DB
	Hub realtime.Publisher

	// ArchiveGrace -> jeda setelah completed/cancelled supaya klien realtime
	// sempat menerima state terakhir
	ArchiveGrace time.Duration
	// EmptyGrace -> sesi tanpa participant aktif dibatalkan setelah jeda ini
	EmptyGrace time.Duration
	// AbandonAfter -> sesi live yang lebih tua dari ini dipaksa cancelled
	// lalu diarsip
	AbandonAfter time.Duration
	// Retention -> sesi terarsip lebih tua dari ini layak hard delete
	Retention time.Duration
}

func NewArchiver(db *gorm.DB, hub realtime.Publisher) *Archiver {
	return &Archiver{
		DB:           db,
		Hub:          hub,
		ArchiveGrace: DefaultArchiveGrace,
		EmptyGrace:   DefaultEmptyGrace,
		AbandonAfter: DefaultAbandonAfter,
		Retention:    DefaultRetention,
	}
}

// SweepSummary -> hasil satu putaran sweep
type SweepSummary struct {
	Cancelled int `json:"cancelled"`
	Archived  int `json:"archived"`
	Purged    int `json:"purged"`
}

// RunOnce -> satu putaran: batalkan sesi terlantar, arsipkan sesi terminal,
// bersihkan sesi lewat retention. Aman dijalankan berulang.
func (a *Archiver) RunOnce() (SweepSummary, error) {
	var summary SweepSummary

	cancelled, err := a.CancelAbandoned()
	if err != nil {
		return summary, err
	}
	summary.Cancelled = cancelled

	archived, err := a.ArchiveFinished()
	if err != nil {
		return summary, err
	}
	summary.Archived = archived

	purged, err := a.PurgeExpired()
	if err != nil {
		return summary, err
	}
	summary.Purged = purged

	if utils.InfoLogger != nil && (summary.Cancelled > 0 || summary.Archived > 0 || summary.Purged > 0) {
		utils.InfoLogger.Printf("archiver sweep: cancelled=%d archived=%d purged=%d",
			summary.Cancelled, summary.Archived, summary.Purged)
	}
	return summary, nil
}

// DryRun -> hitung kandidat tanpa mutasi, untuk endpoint admin
func (a *Archiver) DryRun() (SweepSummary, error) {
	var summary SweepSummary
	now := time.Now()

	var abandoned int64
	if err := a.DB.Model(&models.CollabSession{}).
		Scopes(models.LiveSessions).
		Where("status IN ?", []string{models.SessionStatusActive, models.SessionStatusLocked}).
		Where("created_at <= ?", now.Add(-a.AbandonAfter)).
		Count(&abandoned).Error; err != nil {
		return summary, err
	}
	summary.Cancelled = int(abandoned)

	var finished int64
	if err := a.DB.Model(&models.CollabSession{}).
		Scopes(models.LiveSessions).
		Where("status IN ?", []string{models.SessionStatusCompleted, models.SessionStatusCancelled}).
		Where("completed_at IS NOT NULL AND completed_at <= ?", now.Add(-a.ArchiveGrace)).
		Count(&finished).Error; err != nil {
		return summary, err
	}
	summary.Archived = int(finished)

	var expired int64
	if err := a.DB.Model(&models.CollabSession{}).
		Where("is_archived = ? AND archived_at IS NOT NULL AND archived_at <= ?",
			true, now.Add(-a.Retention)).
		Count(&expired).Error; err != nil {
		return summary, err
	}
	summary.Purged = int(expired)

	return summary, nil
}

// CancelAbandoned -> sesi live melewati ambang abandonment (atau kosong
// melewati empty grace) dipaksa cancelled, lalu putaran arsip memungutnya.
// Dipaksa cancelled dulu supaya sesi terarsip selalu terminal.
func (a *Archiver) CancelAbandoned() (int, error) {
	now := time.Now()

	var stale []models.CollabSession
	if err := a.DB.Scopes(models.LiveSessions).
		Where("status IN ?", []string{models.SessionStatusActive, models.SessionStatusLocked}).
		Where("created_at <= ?", now.Add(-a.AbandonAfter)).
		Limit(archiveSweepBatchMax).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	empty, err := a.emptySessions(now)
	if err != nil {
		return 0, err
	}
	stale = append(stale, empty...)

	cancelled := 0
	for i := range stale {
		changed, err := a.cancelOne(stale[i].ID)
		if err != nil {
			return cancelled, err
		}
		if changed {
			cancelled++
		}
	}
	return cancelled, nil
}

// emptySessions -> sesi tanpa participant aktif/pending lebih tua dari
// EmptyGrace; grace mencegah pembatalan saat semua orang baru saja keluar
// sebentar
func (a *Archiver) emptySessions(now time.Time) ([]models.CollabSession, error) {
	var sessions []models.CollabSession
	err := a.DB.Scopes(models.LiveSessions).
		Where("status IN ?", []string{models.SessionStatusActive, models.SessionStatusLocked}).
		Where("updated_at <= ?", now.Add(-a.EmptyGrace)).
		Where("NOT EXISTS (SELECT 1 FROM session_participants p WHERE p.session_id = collab_sessions.id AND p.status IN ?)",
			[]string{models.ParticipantStatusActive, models.ParticipantStatusPending}).
		Limit(archiveSweepBatchMax).
		Find(&sessions).Error
	return sessions, err
}

// cancelOne -> idempotent: sesi yang keburu berubah status dilewati
func (a *Archiver) cancelOne(sessionID uint) (bool, error) {
	var session *models.CollabSession
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.CollabSession
		if err := utils.WithRowLock(tx).First(&locked, sessionID).Error; err != nil {
			return err
		}
		if locked.IsArchived || !locked.CanTransitionTo(models.SessionStatusCancelled) {
			return nil
		}

		now := time.Now()
		locked.Status = models.SessionStatusCancelled
		locked.CompletedAt = &now
		locked.UpdatedAt = now
		if err := tx.Save(&locked).Error; err != nil {
			return err
		}
		session = &locked
		return nil
	})
	if err != nil || session == nil {
		return false, err
	}

	publish(a.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: realtime.EventSessionCancelled,
		Data: session,
	})
	return true, nil
}

// ArchiveFinished -> sesi terminal yang grace window-nya sudah lewat keluar
// dari default visibility. Re-run pada sesi yang sudah terarsip adalah no-op:
// predikat query melewatinya, archived_at tidak berubah, tanpa event ganda.
func (a *Archiver) ArchiveFinished() (int, error) {
	now := time.Now()

	var eligible []models.CollabSession
	if err := a.DB.Scopes(models.LiveSessions).
		Where("status IN ?", []string{models.SessionStatusCompleted, models.SessionStatusCancelled}).
		Where("completed_at IS NOT NULL AND completed_at <= ?", now.Add(-a.ArchiveGrace)).
		Limit(archiveSweepBatchMax).
		Find(&eligible).Error; err != nil {
		return 0, err
	}

	archived := 0
	for i := range eligible {
		changed, err := a.ArchiveSession(eligible[i].ID)
		if err != nil {
			return archived, err
		}
		if changed {
			archived++
		}
	}
	return archived, nil
}

// ArchiveSession -> arsipkan satu sesi terminal. Idempotent: sesi yang sudah
// terarsip mengembalikan false tanpa error dan tanpa event.
func (a *Archiver) ArchiveSession(sessionID uint) (bool, error) {
	var session *models.CollabSession
	err := a.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.CollabSession
		if err := utils.WithRowLock(tx).First(&locked, sessionID).Error; err != nil {
			return err
		}
		if locked.IsArchived {
			return nil
		}
		if !locked.IsTerminal() {
			return utils.NewConflictError("session %d is %s, only terminal sessions can be archived",
				sessionID, locked.Status)
		}

		now := time.Now()
		locked.IsArchived = true
		locked.ArchivedAt = &now
		locked.UpdatedAt = now
		if err := tx.Save(&locked).Error; err != nil {
			return err
		}
		session = &locked
		return nil
	})
	if err != nil || session == nil {
		return false, err
	}

	publish(a.Hub, realtime.SessionKey(sessionID), realtime.Event{
		Type: realtime.EventSessionArchived,
		Data: session,
	})
	return true, nil
}

// ForceArchive -> admin memaksa satu sesi: cancel kalau masih live, lalu arsip
func (a *Archiver) ForceArchive(sessionID uint) (bool, error) {
	if _, err := a.cancelOne(sessionID); err != nil {
		return false, err
	}
	return a.ArchiveSession(sessionID)
}

// PurgeExpired -> hard delete sesi terarsip melewati retention, cascade ke
// participants, cart items, split payments dan orders yang menunjuk sesi itu
func (a *Archiver) PurgeExpired() (int, error) {
	now := time.Now()

	var expired []models.CollabSession
	if err := a.DB.
		Where("is_archived = ? AND archived_at IS NOT NULL AND archived_at <= ?",
			true, now.Add(-a.Retention)).
		Limit(archiveSweepBatchMax).
		Find(&expired).Error; err != nil {
		return 0, err
	}

	purged := 0
	for i := range expired {
		sessionID := expired[i].ID
		err := a.DB.Transaction(func(tx *gorm.DB) error {
			var orders []models.Order
			if err := tx.Where("collab_session_id = ?", sessionID).Find(&orders).Error; err != nil {
				return err
			}
			for _, order := range orders {
				var splits []models.SplitPaymentSession
				if err := tx.Where("order_id = ?", order.ID).Find(&splits).Error; err != nil {
					return err
				}
				for _, split := range splits {
					if err := tx.Where("split_session_id = ?", split.ID).
						Delete(&models.SplitPaymentPortion{}).Error; err != nil {
						return err
					}
				}
				if err := tx.Where("order_id = ?", order.ID).Delete(&models.SplitPaymentSession{}).Error; err != nil {
					return err
				}
				if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
					return err
				}
				if err := tx.Delete(&models.Order{}, order.ID).Error; err != nil {
					return err
				}
			}

			if err := tx.Where("session_id = ?", sessionID).Delete(&models.SessionCartItem{}).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id = ?", sessionID).Delete(&models.SessionParticipant{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.CollabSession{}, sessionID).Error
		})
		if err != nil {
			return purged, err
		}

		publish(a.Hub, realtime.SessionKey(sessionID), realtime.Event{
			Type: realtime.EventSessionDeleted,
			Data: map[string]interface{}{"session_id": sessionID},
		})
		purged++
	}
	return purged, nil
}
