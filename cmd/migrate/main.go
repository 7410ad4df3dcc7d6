package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/marianozunino/transferhelper/internal/config"
	"github.com/marianozunino/transferhelper/internal/logger"
	"github.com/marianozunino/transferhelper/internal/migration"
)

func main() {
	var (
		configDir = flag.String("config-dir", "", "Directory holding the config file (default: user config dir)")
		dbPath    = flag.String("db", "", "Database path (default: from config)")
		action    = flag.String("action", "up", "Migration action: up, down, force, goto, version")
		version   = flag.Int("version", 0, "Version for force and goto")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zlog, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	path := *dbPath
	if path == "" {
		path = cfg.DatabasePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	m, err := migration.NewManager(path, zlog)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force":
		if *version == 0 {
			log.Fatal("Version must be specified for force action")
		}
		err = m.Force(*version)
	case "goto":
		if *version <= 0 {
			log.Fatal("Version must be specified for goto action")
		}
		err = m.MigrateToVersion(uint(*version))
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil {
			log.Fatalf("Failed to read version: %v", verr)
		}
		log.Printf("Database %s is at version %d (dirty: %t)", path, v, dirty)
		return
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration %s completed for %s", *action, path)
}
