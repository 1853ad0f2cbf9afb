package routes

import (
	"github.com/Captain-Subtext/level5-courseware-sub000/handlers/plans"
	"github.com/Captain-Subtext/level5-courseware-sub000/middleware"

	"github.com/gin-gonic/gin"
)

func PlansRoutes(r *gin.Engine) {
	planRoutes := r.Group("/plans")
	{
		planRoutes.GET("", plans.GetPlans)
		planRoutes.POST("", middleware.AdminAuth(), plans.CreatePlan)
		planRoutes.PUT("/:id", middleware.AdminAuth(), plans.UpdatePlan)
	}
}
