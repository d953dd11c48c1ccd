package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/config"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/db"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/model"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/repository"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "seeder").Logger()

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

	repo := &repository.ContactRepository{DB: conn}

	contacts := []model.Contact{
		{Name: "Maria Silva", Phone: "5567999000001", Email: "maria@example.com", Tags: []string{"vip"}, Groups: []string{"saude"}, IsActive: true},
		{Name: "João Souza", Phone: "5567999000002", Groups: []string{"educacao"}, IsActive: true},
		{Name: "Ana Santos", Phone: "5567999000003", Tags: []string{"newsletter"}, IsActive: true},
		{Name: "Carlos Oliveira", Phone: "5567999000004", IsActive: true},
		{Name: "Bloqueado Teste", Phone: "5567999000005", IsActive: true, IsBlocked: true},
	}

	for i := range contacts {
		contacts[i].ID = uuid.NewString()
		if err := repo.Create(&contacts[i]); err != nil {
			log.Error().Err(err).Str("phone", contacts[i].Phone).Msg("failed to seed contact")
			continue
		}
		log.Info().Str("name", contacts[i].Name).Msg("contact seeded")
	}
}
