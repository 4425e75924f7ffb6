package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/headline-goat/variant-goat/internal/config"
	"github.com/headline-goat/variant-goat/internal/engine"
	"github.com/headline-goat/variant-goat/internal/events"
	"github.com/headline-goat/variant-goat/internal/logging"
	"github.com/headline-goat/variant-goat/internal/store"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withEngine is withStore plus a logger and event publisher built from config.
func withEngine(fn func(*engine.Engine, *store.SQLiteStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	pub := newPublisher(cfg.Events, log)
	defer pub.Close()

	return fn(engine.New(s, engine.WithLogger(log), engine.WithPublisher(pub)), s)
}

// newPublisher builds the configured event publishers. Several backends fan
// out through events.Multi.
func newPublisher(cfg config.EventsConfig, log *zap.Logger) events.Publisher {
	var pubs events.Multi
	for _, backend := range cfg.Backends() {
		switch backend {
		case "none":
		case "redis":
			client := events.DialRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			pubs = append(pubs, events.NewRedisPublisher(client, cfg.Redis.Channel))
		case "kafka":
			pubs = append(pubs, events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		default:
			pubs = append(pubs, events.NewLogPublisher(log))
		}
	}

	switch len(pubs) {
	case 0:
		return events.Nop{}
	case 1:
		return pubs[0]
	default:
		return pubs
	}
}
