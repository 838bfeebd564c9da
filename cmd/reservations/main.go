package main

import (
	"campsite/internal/reservations/events"
	"campsite/internal/reservations/handler"
	"campsite/internal/reservations/repository"
	"campsite/internal/reservations/service"
	"campsite/internal/reservations/validator"
	"campsite/pkg/app"
	"campsite/pkg/config"
	"campsite/pkg/kafka"
	kafka_config "campsite/pkg/kafka/config"
	kafka_middleware "campsite/pkg/kafka/middleware"
)

const (
	ServiceName = "reservations"
	EventsTopic = "reservation-events"
)

func main() {
	cfg := config.Load(ServiceName)

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Reservations service")
	reservationService := initServices(cfg)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, handler.NewReservationHandler(reservationService, cfg.Log))
	serverApp.Run()
}

func initServices(cfg *config.Config) service.ReservationService {
	rangeValidator := validator.NewDateRangeValidator(cfg.Log)
	reservationRepo := repository.NewMongoReservationRepository(cfg)
	publisher := initEvents(cfg)

	reservationService := service.NewReservationService(
		reservationRepo,
		rangeValidator,
		publisher,
		cfg,
	)

	cfg.Log.Info("Reservation service initialized", "database", cfg.MongoDatabaseName)
	return reservationService
}

func initEvents(cfg *config.Config) events.Publisher {
	if !cfg.EventsEnabled {
		cfg.Log.Info("Event publishing disabled")
		return events.NewNopPublisher()
	}

	kafkaCfg := kafka_config.Load()
	producer, err := kafka.NewProducer(kafkaCfg, EventsTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafka_middleware.LoggingProducerMiddleware())
		producer.Use(kafka_middleware.MetricsProducerMiddleware())
	}

	cfg.Log.Info("Event publishing enabled", "topic", EventsTopic, "brokers", kafkaCfg.Brokers)
	return events.NewKafkaPublisher(producer, cfg.Log)
}
