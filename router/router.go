package router

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/controllers"
	"github.com/Fingerliing/payquick-sub001/middlewares"
	"github.com/Fingerliing/payquick-sub001/realtime"
	"github.com/Fingerliing/payquick-sub001/services"
)

func SetupRouter(db *gorm.DB, hub *realtime.Hub) *gin.Engine {
	r := gin.Default()

	// Apply security middlewares. Middleware global harus terpasang sebelum
	// route didaftarkan; gin membekukan handler chain per route saat registrasi
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.NewRateLimiter(50, 1).RateLimit())

	// Inisialisasi service
	sessionSvc := services.NewSessionService(db, hub)
	participantSvc := services.NewParticipantService(db, hub)
	cartSvc := services.NewCartService(db, hub)
	cartSvc.Notifier = services.NewNotifier(db, nil)
	splitSvc := services.NewSplitPaymentService(db, hub)
	orderSvc := services.NewOrderService(db, hub)
	archiver := services.NewArchiver(db, hub)

	// Inisialisasi controller
	userCtrl := controllers.NewUserController(db)
	tableCtrl := controllers.NewTableController(db)
	categoryCtrl := controllers.NewMenuCategoryController(db)
	menuCtrl := controllers.NewMenuController(db)
	sessionCtrl := controllers.NewSessionController(sessionSvc, orderSvc)
	participantCtrl := controllers.NewParticipantController(participantSvc)
	cartCtrl := controllers.NewCartController(cartSvc)
	splitCtrl := controllers.NewSplitPaymentController(db, splitSvc)
	orderCtrl := controllers.NewOrderController(orderSvc)
	restaurantCtrl := controllers.NewRestaurantController(db)
	notifCtrl := controllers.NewNotificationController(db)
	adminCtrl := controllers.NewAdminController(db, archiver)
	realtimeCtrl := controllers.NewRealtimeController(db, hub)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Rate limiter untuk login/register
	public := r.Group("/")
	public.Use(middlewares.NewStrictRateLimiter())
	{
		public.POST("/register", userCtrl.Register)
		public.POST("/login", userCtrl.Login)
	}

	// -- GUEST (Tanpa Auth) --
	// Lihat kategori & menu
	r.GET("/categories", categoryCtrl.GetAllCategories)
	r.GET("/menus", menuCtrl.GetAllMenus)
	r.GET("/menus/:menu_id", menuCtrl.GetMenuByID)

	// Mulai sesi dari QR meja; respon membawa guest token untuk host
	r.POST("/sessions", sessionCtrl.CreateSession)

	// Join lewat share code; respon membawa guest token untuk participant
	r.GET("/sessions/code/:share_code", sessionCtrl.GetSessionByCode)
	r.GET("/sessions/code/:share_code/check", participantCtrl.CheckJoin)
	r.POST("/sessions/code/:share_code/join", participantCtrl.Join)

	// Callback provider pembayaran (diverifikasi lewat payment_intent_id)
	r.POST("/payments/portions/:portion_id/confirm", splitCtrl.ConfirmPortion)

	// Endpoint realtime WebSocket; token lewat query param
	r.GET("/ws", middlewares.WebSocketAuthMiddleware(), realtimeCtrl.HandleWebSocket)

	// ----------------------------------------------------------------
	//                 AUTH ROUTES (guest token atau staff)
	// ----------------------------------------------------------------
	auth := r.Group("/")
	auth.Use(middlewares.AuthMiddleware())
	{
		auth.GET("/profile", userCtrl.GetProfile)

		// Sesi kolaboratif
		auth.GET("/sessions/:session_id", sessionCtrl.GetSession)
		auth.POST("/sessions/:session_id/lock", sessionCtrl.LockSession)
		auth.POST("/sessions/:session_id/unlock", sessionCtrl.UnlockSession)
		auth.POST("/sessions/:session_id/complete", sessionCtrl.CompleteSession)
		auth.POST("/sessions/:session_id/cancel", sessionCtrl.CancelSession)

		// Participant
		auth.GET("/sessions/:session_id/participants", participantCtrl.ListParticipants)
		auth.POST("/sessions/:session_id/participants/:participant_id/approve", participantCtrl.Approve)
		auth.POST("/sessions/:session_id/participants/:participant_id/reject", participantCtrl.Reject)
		auth.DELETE("/sessions/:session_id/participants/:participant_id", participantCtrl.Remove)
		auth.POST("/sessions/:session_id/leave", participantCtrl.Leave)
		auth.POST("/sessions/:session_id/heartbeat", participantCtrl.Heartbeat)

		// Shared cart
		auth.GET("/sessions/:session_id/cart", cartCtrl.GetCart)
		auth.POST("/sessions/:session_id/cart/items", cartCtrl.AddItem)
		auth.PATCH("/sessions/:session_id/cart/items/:item_id", cartCtrl.UpdateItem)
		auth.DELETE("/sessions/:session_id/cart/items/:item_id", cartCtrl.RemoveItem)
		auth.POST("/sessions/:session_id/cart/submit", cartCtrl.Submit)

		// Split payment
		auth.POST("/orders/:order_id/split", splitCtrl.CreateSplit)
		auth.GET("/orders/:order_id/split", splitCtrl.GetSplit)
		auth.GET("/orders/:order_id/split/status", splitCtrl.GetStatus)
		auth.POST("/payments/portions/:portion_id/pay", splitCtrl.PayPortion)
	}

	// ----------------------------------------------------------------
	//                      STAFF ROUTES
	// ----------------------------------------------------------------
	staff := r.Group("/staff")
	staff.Use(middlewares.AuthMiddleware(), middlewares.RequireRole("staff"))
	{
		staff.GET("/restaurants/:restaurant_id/orders", orderCtrl.GetAllOrders)
		staff.GET("/orders/:order_id", orderCtrl.GetOrderByID)
		staff.PATCH("/orders/:order_id/status", orderCtrl.UpdateOrderStatus)

		staff.GET("/tables", tableCtrl.GetAllTables)
		staff.GET("/tables/:table_id", tableCtrl.GetTableByID)
		staff.POST("/tables", tableCtrl.CreateTable)
		staff.PATCH("/tables/:table_id/status", tableCtrl.UpdateTableStatus)
		staff.DELETE("/tables/:table_id", tableCtrl.DeleteTable)

		staff.POST("/menus", menuCtrl.CreateMenu)
		staff.PATCH("/menus/:menu_id", menuCtrl.UpdateMenu)
		staff.DELETE("/menus/:menu_id", menuCtrl.DeleteMenu)

		staff.GET("/notifications", notifCtrl.GetAllNotifications)
		staff.DELETE("/notifications/:notif_id", notifCtrl.DeleteNotification)

		staff.POST("/categories", categoryCtrl.CreateCategory)
		staff.PATCH("/categories/:category_id", categoryCtrl.UpdateCategory)
		staff.DELETE("/categories/:category_id", categoryCtrl.DeleteCategory)
	}

	// ----------------------------------------------------------------
	//                      ADMIN ROUTES
	// ----------------------------------------------------------------
	admin := r.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(), middlewares.RequireRole())
	{
		admin.GET("/stats", adminCtrl.GetDashboardStats)
		admin.POST("/restaurants", restaurantCtrl.CreateRestaurant)
		admin.GET("/restaurants", restaurantCtrl.GetAllRestaurants)
		admin.GET("/restaurants/:restaurant_id", restaurantCtrl.GetRestaurantByID)
		admin.PATCH("/restaurants/:restaurant_id", restaurantCtrl.UpdateRestaurant)
		admin.GET("/users", userCtrl.GetAllUsers)
		admin.GET("/sessions", adminCtrl.ListSessions)
		admin.POST("/sessions/:session_id/archive", adminCtrl.ForceArchiveSession)
		admin.POST("/archival/run", adminCtrl.RunArchivalSweep)
		admin.GET("/archival/preview", adminCtrl.PreviewArchivalSweep)
	}

	return r
}
