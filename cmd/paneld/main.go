package main

import (
	"flag"
	"log"
	"os"

	v1 "vpnpanel/api/v1"
	"vpnpanel/internal/auth"
	"vpnpanel/internal/cache"
	"vpnpanel/internal/config"
	"vpnpanel/internal/db"
	"vpnpanel/internal/linker"
	"vpnpanel/internal/model"
	"vpnpanel/internal/offline"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "", "path to INI config file (optional, env overrides)")
	flag.Parse()

	// 1. Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromINI(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("✓ Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.DB); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}
	if err := seedAdmin(db.DB); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// 4. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	logger := logrus.NewEntry(logrus.StandardLogger())

	// 5. Background workers
	if cfg.Linker.Enabled {
		w := linker.NewWorker(&linker.Config{
			DB:          db.DB,
			Logger:      logger,
			IntervalSec: cfg.Linker.IntervalSec,
			BatchSize:   cfg.Linker.BatchSize,
		})
		w.Start()
		defer w.Stop()
	}
	if cfg.OfflineMarker.Enabled {
		w := offline.NewWorker(&offline.Config{
			DB:            db.DB,
			Logger:        logger,
			IntervalSec:   cfg.OfflineMarker.IntervalSec,
			StaleAfterSec: cfg.OfflineMarker.StaleAfterSec,
		})
		w.Start()
		defer w.Stop()
	}

	// 6. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	v1.SetupRouter(r, db.DB, cfg, logger)

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// seedAdmin creates the initial admin account when the table is empty
// and ADMIN_USER/ADMIN_PASSWORD are provided.
func seedAdmin(gdb *gorm.DB) error {
	username := os.Getenv("ADMIN_USER")
	password := os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}

	var count int64
	if err := gdb.Model(&model.AdminUser{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	log.Printf("✓ Seeding admin user %q", username)
	return gdb.Create(&model.AdminUser{
		Username:     username,
		PasswordHash: hash,
		Role:         "admin",
		Status:       model.AdminUserStatusActive,
	}).Error
}
