package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"moff.io/wallet-pairing/internal/config"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

// Connect opens postgres, pings it and migrates the event log table.
func Connect(conf *config.DBCredential) (*gorm.DB, error) {
	gormConf := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	}
	if conf.Schema != "" {
		gormConf.NamingStrategy = schema.NamingStrategy{TablePrefix: conf.Schema + "."}
	}
	cli, err := gorm.Open(postgres.Open(conf.Dsn()), gormConf)
	if err != nil {
		return nil, errors.Wrap(err, "connect to pg")
	}
	db, err := cli.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get pg conn")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping to pg")
	}
	log.Info("Connected to postgres...")

	if err := cli.AutoMigrate(&WalletSessionEvent{}); err != nil {
		return nil, errors.Wrap(err, "autoMigrate tables")
	}
	return cli, nil
}

// Close releases the pool behind cli.
func Close(cli *gorm.DB) {
	db, err := cli.DB()
	if err != nil {
		return
	}
	if err := db.Close(); err != nil {
		log.Warnf("close pg: %v", err)
	}
}
