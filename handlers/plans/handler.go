package plans

import (
	"net/http"

	"github.com/Captain-Subtext/level5-courseware-sub000/db"
	"github.com/Captain-Subtext/level5-courseware-sub000/models"
	"github.com/Captain-Subtext/level5-courseware-sub000/utils"

	"github.com/gin-gonic/gin"
)

// @Summary Get the active plans
// @Description Retrieve the plans currently offered for subscription
// @Tags plans
// @Produce json
// @Success 200 {array} models.Plan
// @Failure 500 {object} utils.Response
// @Router /plans [get]
func GetPlans(c *gin.Context) {
	var planList []models.Plan

	result := db.DB.Where("active = ?", true).Order("amount ASC").Find(&planList)
	if result.Error != nil {
		utils.SendError(c, http.StatusInternalServerError, result.Error.Error())
		return
	}

	c.JSON(http.StatusOK, planList)
}

// @Summary Create a new plan
// @Description Create a new plan mapping a plan type to a Stripe price
// @Tags plans
// @Accept json
// @Produce json
// @Param plan body models.Plan true "Plan information"
// @Security BearerAuth
// @Success 201 {object} models.Plan
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /plans [post]
func CreatePlan(c *gin.Context) {
	var plan models.Plan
	if !utils.ValidateRequestBody(c, &plan) {
		return
	}

	// One active plan per type; checkout metadata resolves by plan_type
	var existingPlan models.Plan
	result := db.DB.First(&existingPlan, "plan_type = ? AND active = ?", plan.PlanType, true)
	if result.Error == nil {
		utils.SendError(c, http.StatusBadRequest, "An active plan with this type already exists")
		return
	}

	if err := db.DB.Create(&plan).Error; err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Error creating plan: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// @Summary Update a plan
// @Description Update a plan's name, price mapping or active flag
// @Tags plans
// @Accept json
// @Produce json
// @Param id path string true "Plan ID"
// @Param plan body models.Plan true "Plan information"
// @Security BearerAuth
// @Success 200 {object} models.Plan
// @Failure 400 {object} utils.Response
// @Failure 401 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /plans/{id} [put]
func UpdatePlan(c *gin.Context) {
	planID := c.Param("id")

	var plan models.Plan
	if err := db.DB.First(&plan, "id = ?", planID).Error; err != nil {
		utils.SendError(c, http.StatusNotFound, "Plan not found")
		return
	}

	var input models.Plan
	if !utils.ValidateRequestBody(c, &input) {
		return
	}

	updates := map[string]interface{}{
		"name":            input.Name,
		"plan_type":       input.PlanType,
		"stripe_price_id": input.StripePriceID,
		"amount":          input.Amount,
		"currency":        input.Currency,
		"active":          input.Active,
	}
	if err := db.DB.Model(&plan).Updates(updates).Error; err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Error updating plan: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, plan)
}
