package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Fingerliing/payquick-sub001/models"
	"github.com/Fingerliing/payquick-sub001/utils"
)

type MenuCategoryController struct {
	DB *gorm.DB
}

func NewMenuCategoryController(db *gorm.DB) *MenuCategoryController {
	return &MenuCategoryController{DB: db}
}

// GetAllCategories
func (mcc *MenuCategoryController) GetAllCategories(c *gin.Context) {
	var categories []models.MenuCategory
	if err := mcc.DB.Find(&categories).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of menu categories", categories)
}

// CreateCategory
func (mcc *MenuCategoryController) CreateCategory(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	category := models.MenuCategory{Name: req.Name}
	if err := mcc.DB.Create(&category).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.InfoLogger.Printf("New menu category created: %s", category.Name)
	utils.RespondJSON(c, http.StatusCreated, "Menu category created", category)
}

// UpdateCategory
func (mcc *MenuCategoryController) UpdateCategory(c *gin.Context) {
	categoryID := c.Param("category_id")
	var category models.MenuCategory
	if err := mcc.DB.First(&category, categoryID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	category.Name = req.Name
	if err := mcc.DB.Save(&category).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu category updated", category)
}

// DeleteCategory -> ditolak kalau masih dipakai menu
func (mcc *MenuCategoryController) DeleteCategory(c *gin.Context) {
	categoryID := c.Param("category_id")
	var category models.MenuCategory
	if err := mcc.DB.First(&category, categoryID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, err)
		return
	}

	var inUse int64
	if err := mcc.DB.Model(&models.Menu{}).Where("category_id = ?", category.ID).Count(&inUse).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	if inUse > 0 {
		utils.RespondAppError(c, utils.NewConflictError("category %d is still used by %d menus", category.ID, inUse))
		return
	}

	if err := mcc.DB.Delete(&category).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Menu category deleted", gin.H{"id": category.ID})
}
