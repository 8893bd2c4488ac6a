package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"collabEngine/backend/internal/cache"
	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/httpapi/handlers"
	"collabEngine/backend/internal/httpapi/middleware"
	"collabEngine/backend/internal/registry"
	"collabEngine/backend/internal/store"
	"collabEngine/backend/internal/ws"
)

type EngineConfig struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"auth"`
	Presence struct {
		SweepIntervalSec int `mapstructure:"sweepIntervalSec"`
		IdleAfterSec     int `mapstructure:"idleAfterSec"`
		AwayAfterSec     int `mapstructure:"awayAfterSec"`
	} `mapstructure:"presence"`
	Session struct {
		GracePeriodSec int `mapstructure:"gracePeriodSec"`
	} `mapstructure:"session"`
}

func initConfig() (*EngineConfig, error) {
	cfg := &EngineConfig{}
	v := viper.New()
	v.SetConfigName("engineConfig")
	v.SetConfigType("yaml")
	// works from the repo root or from backend/
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: %+v", cfg)

	ctx := context.Background()

	// The engine is memory-resident: redis, mysql and kafka are supporting
	// infrastructure, each optional at startup.
	var presenceMirror cache.PresenceCache
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis unavailable, presence mirror disabled: %v", err)
		} else {
			defer rdb.Close()
			presenceMirror = cache.NewRedisPresence(rdb)
		}
	}

	var snapshots *store.SnapshotStore
	if cfg.Mysql.DSN != "" {
		snapshots, err = store.OpenSnapshotStore(cfg.Mysql.DSN)
		if err != nil {
			log.Printf("mysql unavailable, snapshot persistence disabled: %v", err)
			snapshots = nil
		}
	}

	var dispatcher *collab.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, kerr := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if kerr != nil {
			log.Printf("kafka unavailable, op events disabled: %v", kerr)
		} else {
			defer producer.Close()
			dispatcher = collab.NewKafkaDispatcher(
				producer,
				cfg.Kafka.Topic,
				collab.NewSemaphoreControl(100),
				collab.KafkaDispatcherOptions{
					QueueSize:   10_000,
					Workers:     4,
					MaxRetry:    3,
					BaseBackoff: 50 * time.Millisecond,
					MaxBackoff:  1 * time.Second,
				},
			)
		}
	}

	docs := store.NewDocumentStore()
	svc := collab.NewEngine(docs, snapshots, dispatcher)

	reg := registry.New(registry.Config{
		SweepInterval: time.Duration(cfg.Presence.SweepIntervalSec) * time.Second,
		IdleAfter:     time.Duration(cfg.Presence.IdleAfterSec) * time.Second,
		AwayAfter:     time.Duration(cfg.Presence.AwayAfterSec) * time.Second,
		GracePeriod:   time.Duration(cfg.Session.GracePeriodSec) * time.Second,
	}, presenceMirror)

	hub := ws.NewHub()
	reg.OnStatusChange(func(change registry.StatusChange) {
		hub.Broadcast(change.SessionID, nil, ws.StatusChangeMessage{
			Type:   ws.MsgUserStatus,
			UserID: change.UserID,
			Status: change.Status,
		})
	})
	reg.OnSessionEmpty(func(sessionID string) {
		log.Printf("session %s empty past grace period, disposing", sessionID)
		svc.DisposeSession(context.Background(), sessionID)
	})
	reg.Start(ctx)

	manager := ws.NewManager(hub, reg, svc, collab.NewSemaphoreControl(100))
	docHandler := handlers.NewDocumentHandler(svc)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	group := r.Group("/collab")
	group.Use(middleware.AuthMiddleware(cfg.Auth.Path))
	group.GET("/ws", manager.WebSocketConnect)
	group.GET("/documents/:sessionId", docHandler.GetDocument)
	group.POST("/documents/:sessionId/save", docHandler.SaveDocument)
	r.GET("/collab/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	port := cfg.Running.Port
	_ = r.Run(fmt.Sprintf(":%d", port))
}
