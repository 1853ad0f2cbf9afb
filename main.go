package main

import (
	"log"

	"github.com/Captain-Subtext/level5-courseware-sub000/db"
	_ "github.com/Captain-Subtext/level5-courseware-sub000/docs"
	"github.com/Captain-Subtext/level5-courseware-sub000/routes"

	"github.com/gin-gonic/gin"
)

// @title Level5 Courseware API
// @version 1.0
// @description Subscription and billing API for the Level5 courseware platform
// @host localhost:8080
// @BasePath /
// @SecurityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter the JWT with the Bearer prefix: Bearer <JWT>
func main() {

	gin.SetMode(gin.ReleaseMode)

	db.InitDB()

	r := routes.SetupRouter()

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Error starting the server:", err)
	}
}
