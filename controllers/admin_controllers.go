package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/services"
	"github.com/Fingerliing/payquick-sub001/utils"
)

type AdminController struct {
	DB       *gorm.DB
	Archiver *services.Archiver
}

func NewAdminController(db *gorm.DB, archiver *services.Archiver) *AdminController {
	return &AdminController{DB: db, Archiver: archiver}
}

// GetDashboardStats mengambil statistik sesi dan order untuk dashboard
func (ac *AdminController) GetDashboardStats(c *gin.Context) {
	today := time.Now().Format("2006-01-02")

	var stats struct {
		TotalSessions int64 `json:"total_sessions"`
		TodaySessions int64 `json:"today_sessions"`
		SessionStats  struct {
			Active    int64 `json:"active"`
			Locked    int64 `json:"locked"`
			Payment   int64 `json:"payment"`
			Completed int64 `json:"completed"`
			Cancelled int64 `json:"cancelled"`
			Archived  int64 `json:"archived"`
		} `json:"session_stats"`
		OrderStats struct {
			Pending    int64 `json:"pending"`
			InProgress int64 `json:"in_progress"`
			Ready      int64 `json:"ready"`
			Served     int64 `json:"served"`
			Completed  int64 `json:"completed"`
		} `json:"order_stats"`
		TotalRevenue float64 `json:"total_revenue"`
		TodayRevenue float64 `json:"today_revenue"`
	}

	sessions := func() *gorm.DB { return ac.DB.Model(&models.CollabSession{}) }
	sessions().Count(&stats.TotalSessions)
	sessions().Where("DATE(created_at) = ?", today).Count(&stats.TodaySessions)
	sessions().Where("status = ?", models.SessionStatusActive).Count(&stats.SessionStats.Active)
	sessions().Where("status = ?", models.SessionStatusLocked).Count(&stats.SessionStats.Locked)
	sessions().Where("status = ?", models.SessionStatusPayment).Count(&stats.SessionStats.Payment)
	sessions().Where("status = ?", models.SessionStatusCompleted).Count(&stats.SessionStats.Completed)
	sessions().Where("status = ?", models.SessionStatusCancelled).Count(&stats.SessionStats.Cancelled)
	sessions().Where("is_archived = ?", true).Count(&stats.SessionStats.Archived)

	orders := func() *gorm.DB { return ac.DB.Model(&models.Order{}) }
	orders().Where("status = ?", models.OrderStatusPending).Count(&stats.OrderStats.Pending)
	orders().Where("status = ?", models.OrderStatusInProgress).Count(&stats.OrderStats.InProgress)
	orders().Where("status = ?", models.OrderStatusReady).Count(&stats.OrderStats.Ready)
	orders().Where("status = ?", models.OrderStatusServed).Count(&stats.OrderStats.Served)
	orders().Where("status = ?", models.OrderStatusCompleted).Count(&stats.OrderStats.Completed)

	orders().Where("payment_status = ?", models.PaymentStatusPaid).
		Select("COALESCE(SUM(total_amount), 0)").Row().Scan(&stats.TotalRevenue)
	orders().Where("payment_status = ? AND DATE(created_at) = ?", models.PaymentStatusPaid, today).
		Select("COALESCE(SUM(total_amount), 0)").Row().Scan(&stats.TodayRevenue)

	utils.RespondJSON(c, http.StatusOK, "Dashboard stats retrieved successfully", stats)
}

// ListSessions -> seluruh sesi, termasuk yang diarsip kalau ?archived=true
func (ac *AdminController) ListSessions(c *gin.Context) {
	query := ac.DB.Preload("Participants").Order("created_at desc")
	if c.Query("archived") != "true" {
		query = models.LiveSessions(query)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var sessions []models.CollabSession
	if err := query.Find(&sessions).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of sessions", sessions)
}

// RunArchivalSweep -> jalankan sweep cancel/arsip/purge sekarang
func (ac *AdminController) RunArchivalSweep(c *gin.Context) {
	summary, err := ac.Archiver.RunOnce()
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.InfoLogger.Printf("Archival sweep ran: cancelled=%d archived=%d purged=%d",
		summary.Cancelled, summary.Archived, summary.Purged)
	utils.RespondJSON(c, http.StatusOK, "Archival sweep completed", summary)
}

// PreviewArchivalSweep -> hitung kandidat tanpa mengubah apa pun
func (ac *AdminController) PreviewArchivalSweep(c *gin.Context) {
	summary, err := ac.Archiver.DryRun()
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Archival sweep preview", summary)
}

// ForceArchiveSession -> arsipkan satu sesi tanpa menunggu grace period
func (ac *AdminController) ForceArchiveSession(c *gin.Context) {
	sessionID, err := paramUint(c, "session_id")
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	changed, err := ac.Archiver.ForceArchive(sessionID)
	if err != nil {
		utils.RespondAppError(c, err)
		return
	}

	if changed {
		utils.InfoLogger.Printf("Session %d force-archived", sessionID)
	}
	utils.RespondJSON(c, http.StatusOK, "Session archived", gin.H{
		"session_id": sessionID,
		"changed":    changed,
	})
}
