package data

import (
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/helix-markets/agentfleet/src/types"
)

// ConnectMySQL opens the shared database handle and migrates the schema.
func ConnectMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("data: mysql: %w", err)
	}
	if err := db.AutoMigrate(
		&types.Agent{},
		&types.PendingApproval{},
		&types.TradeLog{},
		&types.CustodyBinding{},
		&types.Setting{},
	); err != nil {
		return nil, fmt.Errorf("data: migrate: %w", err)
	}
	return db, nil
}

// MustMySQL is ConnectMySQL for mains.
func MustMySQL(dsn string) *gorm.DB {
	db, err := ConnectMySQL(dsn)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	return db
}
