package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/config"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/db"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/dispatch"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/handler"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/queue"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/repository"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/service"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "server").Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	q, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer q.Close()

	gateway := transport.NewGateway(cfg.GatewayURL, log)

	campaignRepo := &repository.CampaignRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		ContactRepo:  contactRepo,
		Queue:        q,
		Transport:    gateway,
		Log:          log,
	}

	campaignHandler := &handler.CampaignHandler{Service: campaignService}
	contactHandler := &handler.ContactHandler{Repo: contactRepo}
	whatsappHandler := &handler.WhatsAppHandler{
		Gateway:  gateway,
		Receipts: dispatch.NewReceipts(campaignRepo, log),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages/send", campaignHandler.SendMessage)
		r.Get("/messages", campaignHandler.ListMessages)
		r.Get("/messages/stats/overview", campaignHandler.StatsOverview)
		r.Get("/messages/{id}", campaignHandler.GetMessage)
		r.Post("/messages/{id}/redispatch", campaignHandler.Redispatch)

		r.Get("/contacts", contactHandler.ListContacts)

		r.Get("/whatsapp/status", whatsappHandler.Status)
		r.Get("/whatsapp/qr", whatsappHandler.QR)
		r.Post("/whatsapp/receipts", whatsappHandler.Receipt)
	})

	log.Info().Str("port", cfg.Port).Msg("server running")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
