package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/config"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/db"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/dispatch"
	apperrors "github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/errors"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/queue"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/repository"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/scheduler"
	"github.com/Prefeitura-de-CorumbaMS/WhatsApp-Dispara/internal/transport"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker").Logger()

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

	dispatcher := dispatch.New(campaignRepo, contactRepo, gateway, dispatch.Config{
		MessageDelay: cfg.MessageDelay,
		MaxRetries:   cfg.MaxRetries,
	}, log)

	poller := scheduler.New(campaignRepo, q, cfg.SchedulerPoll, log)
	if err := poller.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer poller.Stop()

	deliveries, err := q.Consume()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutting down")
		cancel()
	}()

	log.Info().Msg("worker running, waiting for dispatch jobs")

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Error().Msg("delivery channel closed")
				return
			}

			job, err := queue.ParseJob(d)
			if err != nil {
				log.Error().Err(err).Msg("invalid dispatch job, dropping")
				d.Ack(false)
				continue
			}

			err = dispatcher.Dispatch(ctx, job.CampaignID)
			switch {
			case err == nil:
				// Recipients that failed an attempt but are not exhausted
				// stay pending; requeue so they get another round.
				campaign, cerr := campaignRepo.GetByID(job.CampaignID)
				if cerr == nil && !campaign.IsCompleted {
					if rerr := q.Requeue(d, cfg.MaxRetries); rerr != nil {
						log.Error().Err(rerr).Str("campaign", job.CampaignID).Msg("requeue failed")
						d.Ack(false)
					}
					continue
				}
				d.Ack(false)
			case apperrors.IsNotFound(err):
				log.Error().Str("campaign", job.CampaignID).Msg("campaign not found, dropping job")
				d.Ack(false)
			case errors.Is(err, context.Canceled):
				d.Nack(false, true)
				return
			default:
				// Connection or persistence trouble: everything unsent is
				// still pending, so put the job back for a later resume.
				log.Error().Err(err).Str("campaign", job.CampaignID).Msg("dispatch aborted")
				if rerr := q.Requeue(d, cfg.MaxRetries); rerr != nil {
					log.Error().Err(rerr).Str("campaign", job.CampaignID).Msg("requeue failed")
					d.Ack(false)
				}
			}
		}
	}
}
