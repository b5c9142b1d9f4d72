package models

import (
	"log"

	"bitbucket.org/mmdatafocus/slr_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&CalculationRun{},
		&UserDashboardPreference{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
