package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "fileflow-backend/cmd/api"
	aiDelivery "fileflow-backend/internal/ai/delivery"
	aidomain "fileflow-backend/internal/ai/domain"
	aiRepo "fileflow-backend/internal/ai/repository"
	aiUsecase "fileflow-backend/internal/ai/usecase"
	authDelivery "fileflow-backend/internal/auth/delivery"
	authdomain "fileflow-backend/internal/auth/domain"
	authRepo "fileflow-backend/internal/auth/repository"
	authUsecase "fileflow-backend/internal/auth/usecase"
	"fileflow-backend/internal/files/classifier"
	filesDelivery "fileflow-backend/internal/files/delivery"
	filesdomain "fileflow-backend/internal/files/domain"
	filesRepo "fileflow-backend/internal/files/repository"
	"fileflow-backend/internal/files/uploader"
	"fileflow-backend/internal/notification"
	paymentDelivery "fileflow-backend/internal/payment/delivery"
	paymentdomain "fileflow-backend/internal/payment/domain"
	paymentRepo "fileflow-backend/internal/payment/repository"
	paymentUsecase "fileflow-backend/internal/payment/usecase"
	"fileflow-backend/internal/state"
	statedomain "fileflow-backend/internal/state/domain"
	stateRepo "fileflow-backend/internal/state/repository"
	subscriptionDelivery "fileflow-backend/internal/subscription/delivery"
	subdomain "fileflow-backend/internal/subscription/domain"
	subscriptionRepo "fileflow-backend/internal/subscription/repository"
	subscriptionUsecase "fileflow-backend/internal/subscription/usecase"
	syncDelivery "fileflow-backend/internal/sync/delivery"
	"fileflow-backend/internal/sync/scheduler"
	syncUsecase "fileflow-backend/internal/sync/usecase"
	todoDelivery "fileflow-backend/internal/todo/delivery"
	tododomain "fileflow-backend/internal/todo/domain"
	todoRepo "fileflow-backend/internal/todo/repository"
	todoUsecase "fileflow-backend/internal/todo/usecase"
	"fileflow-backend/pkg/ai"
	"fileflow-backend/pkg/chroma"
	"fileflow-backend/pkg/config"
	"fileflow-backend/pkg/crypto"
	"fileflow-backend/pkg/database"
	"fileflow-backend/pkg/fcm"
	"fileflow-backend/pkg/gmail"
	"fileflow-backend/pkg/logger"
	"fileflow-backend/pkg/mpesa"
	"fileflow-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.FCMToken{},
		&filesdomain.ProcessedFile{}, &statedomain.Record{}, &aidomain.CacheEntry{},
		&tododomain.Todo{}, &subdomain.Subscription{}, &paymentdomain.Transaction{},
	); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	if config.IsPlaceholder(cfg.TokenEncryptionKey) {
		log.Warn().Msg("TOKEN_ENCRYPTION_KEY not set, deriving the token key from JWT_SECRET")
		cfg.TokenEncryptionKey = cfg.JWTSecret
	}
	box := crypto.NewBox(cfg.TokenEncryptionKey)

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	fcmTokenRepo := authRepo.NewFCMTokenRepository(db)
	fileRepo := filesRepo.NewFileRepository(db)
	cacheRepo := aiRepo.NewCacheRepository(db, nil)
	todoRepository := todoRepo.NewTodoRepository(db)
	subscriptionRepository := subscriptionRepo.NewSubscriptionRepository(db)
	paymentRepository := paymentRepo.NewPaymentRepository(db)
	localState := state.NewLocalState(stateRepo.NewGormStore(db))

	// Google APIs
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret)
	googleClients := authUsecase.NewGoogleClients(userRepo, box, gmailService)
	verifier, err := authUsecase.NewGoogleVerifier(ctx, authUsecase.GoogleJWKSURL, cfg.GoogleClientID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Google token verifier")
	}

	// Subscription and quota
	subUC := subscriptionUsecase.NewSubscriptionUsecase(subscriptionRepository, localState, subscriptionUsecase.Config{
		Limits: map[subdomain.Feature]int{
			subdomain.FeatureSummaries: cfg.FreeSummariesPerDay,
			subdomain.FeatureReplies:   cfg.FreeRepliesPerDay,
			subdomain.FeatureSearches:  cfg.FreeSearchesPerDay,
		},
		TrialDuration: cfg.TrialDuration,
		Location:      cfg.Location(),
	})

	// AI providers and semantic index
	cascade, closeAI, err := ai.NewCascadeFromConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AI providers")
	}
	defer closeAI()

	var searchIndex aidomain.FileIndex
	var syncIndex syncUsecase.FileIndexer
	if config.IsPlaceholder(cfg.ChromaAPIKey) {
		log.Warn().Msg("CHROMA_API_KEY not set. Semantic search will not be available.")
	} else {
		fileIndex, err := chroma.NewFileIndex(ctx, chroma.Config{
			APIKey:       cfg.ChromaAPIKey,
			Tenant:       cfg.ChromaTenant,
			Database:     cfg.ChromaDatabase,
			GeminiAPIKey: cfg.GeminiAPIKey,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Chroma. Semantic search will not be available.")
		} else {
			searchIndex = fileIndex
			syncIndex = fileIndex
			log.Info().Msg("Chroma file index initialized")
		}
	}
	aiUC := aiUsecase.NewAIUsecase(cascade, cacheRepo, subUC, fileRepo, searchIndex)
	var remoteClassifier classifier.RemoteClassifier
	if cascade.Enabled() {
		remoteClassifier = aiUC
	}
	attachmentClassifier := classifier.New(remoteClassifier)

	// Todos: local first, mirrored through the retry queue
	todoQueue := todoUsecase.NewSyncQueue(todoRepository, todoUsecase.DefaultQueueConfig())
	todoQueue.Start()
	todoUC := todoUsecase.NewTodoUsecase(localState, todoRepository, todoQueue, nil)

	// Payments
	var gateway paymentUsecase.Gateway
	if config.IsPlaceholder(cfg.MpesaConsumerKey) || config.IsPlaceholder(cfg.MpesaPasskey) {
		log.Warn().Msg("M-Pesa credentials not set, payments disabled")
	} else {
		gateway = mpesa.NewClient(mpesa.Config{
			BaseURL:        cfg.MpesaBaseURL,
			ConsumerKey:    cfg.MpesaConsumerKey,
			ConsumerSecret: cfg.MpesaConsumerSecret,
			ShortCode:      cfg.MpesaShortCode,
			Passkey:        cfg.MpesaPasskey,
			CallbackURL:    cfg.MpesaCallbackURL,
		}, nil)
	}
	paymentUC := paymentUsecase.NewPaymentUsecase(gateway, paymentRepository, subUC, cfg.MpesaAmount)

	// Push notifications (optional)
	var notifier syncUsecase.Notifier
	if config.IsPlaceholder(cfg.FirebaseCredentials) {
		log.Warn().Msg("FIREBASE_CREDENTIALS_FILE not set, push notifications disabled")
	} else {
		fcmClient, err := fcm.NewClient(ctx, cfg.FirebaseCredentials)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize FCM client, push notifications disabled")
		} else {
			notifier = notification.NewPushNotifier(fcmTokenRepo, fcmClient)
		}
	}

	// Sync orchestrator and scheduler
	fileUploader := uploader.New(cfg.DriveRootFolder, nil)
	syncUC := syncUsecase.NewSyncUsecase(syncUsecase.Deps{
		Clients:    googleClients,
		LocalState: localState,
		Files:      fileRepo,
		Classifier: attachmentClassifier,
		Uploader:   fileUploader,
		Index:      syncIndex,
		Tiers:      subUC,
		Extractor:  aiUC,
		Todos:      todoUC,
		Notifier:   notifier,
	})
	syncScheduler := scheduler.NewSyncScheduler(syncUC, userRepo, cfg.SyncInterval, func(ctx context.Context) error {
		n, err := cacheRepo.PurgeExpired(ctx)
		if n > 0 {
			log.Info().Int64("purged", n).Msg("[AI] Purged expired cache entries")
		}
		return err
	})
	syncScheduler.Start()

	// Gmail push notifications (optional)
	if !config.IsPlaceholder(cfg.GoogleProjectID) && !config.IsPlaceholder(cfg.GooglePubSubTopic) {
		listener, err := notification.NewListener(ctx, cfg.GoogleProjectID, cfg.GooglePubSubTopic, cfg.GoogleCredentialsFile, userRepo, syncScheduler.Trigger)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Pub/Sub listener, relying on the scheduler")
		} else {
			defer listener.Close()
			go listener.Start(ctx)
		}
	}

	// Auth, with per-user cleanups run on logout
	authUC := authUsecase.NewAuthUsecase(userRepo, fcmTokenRepo, verifier, box, localState, googleClients, cfg,
		fileRepo.DeleteByUser,
		func(ctx context.Context, userID string) error {
			fileUploader.Reset(userID)
			return nil
		},
	)

	limiter := rateLimitStore(ctx, cfg)

	handler := api.NewHandler(authUC, api.Handlers{
		Auth:         authDelivery.NewAuthHandler(authUC),
		AI:           aiDelivery.NewAIHandler(aiUC, attachmentClassifier),
		Files:        filesDelivery.NewFileHandler(fileRepo),
		Sync:         syncDelivery.NewSyncHandler(syncUC),
		Todo:         todoDelivery.NewTodoHandler(todoUC),
		Subscription: subscriptionDelivery.NewSubscriptionHandler(subUC),
		Payment:      paymentDelivery.NewPaymentHandler(paymentUC),
		Settings:     api.NewSettingsHandler(localState),
	}, limiter, cfg)

	server := handler.Server(":" + cfg.Port)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}
	syncScheduler.Stop()
	todoQueue.Stop()
	if failed := todoQueue.Failed(); len(failed) > 0 {
		log.Warn().Int("jobs", len(failed)).Msg("[TodoQueue] Unsynced todo writes at shutdown")
	}
}

// rateLimitStore prefers Redis and falls back to process memory.
func rateLimitStore(ctx context.Context, cfg *config.Config) ratelimit.Store {
	if !config.IsPlaceholder(cfg.RedisURL) {
		store, err := ratelimit.NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err == nil {
			log.Info().Msg("[RateLimit] Using Redis counters")
			return store
		}
		log.Warn().Err(err).Msg("[RateLimit] Redis unavailable, using in-memory counters")
	}

	store := ratelimit.NewMemoryStore(nil)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				store.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
	return store
}
