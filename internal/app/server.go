package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/adiga-code/SimConnect/internal"
	"github.com/adiga-code/SimConnect/internal/handlers"
	"github.com/adiga-code/SimConnect/internal/logger"
	"github.com/adiga-code/SimConnect/internal/metrics"
	"github.com/adiga-code/SimConnect/internal/notify"
	"github.com/adiga-code/SimConnect/internal/provider"
	"github.com/adiga-code/SimConnect/internal/service"
	"github.com/adiga-code/SimConnect/internal/storage"
	"github.com/caarlos0/env/v6"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

func Start() {
	var cfg internal.Config
	var secretFilePath string
	flag.StringVar(&cfg.Address, "a", "localhost:8080", "address to listen on")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database connection string")
	flag.StringVar(&cfg.ProviderName, "p", "fake", "sms provider name")
	flag.StringVar(&cfg.ProviderAPIKey, "k", "", "sms provider api key")
	flag.StringVar(&cfg.ProviderAPIURL, "u", "", "sms provider api url")
	flag.DurationVar(&cfg.OrderTimeout, "t", 15*time.Minute, "order lifetime before expiry")
	flag.DurationVar(&cfg.SweepInterval, "w", time.Minute, "interval of the expiry sweep")
	flag.DurationVar(&cfg.StreamHeartbeat, "b", 30*time.Second, "event stream keep-alive interval")
	flag.StringVar(&cfg.LogLevel, "l", "info", "log level")
	flag.StringVar(&secretFilePath, "s", "", "path to file with secret")
	flag.Parse()
	err := env.Parse(&cfg)
	if err != nil {
		panic(err)
	}
	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer zap.L().Sync()

	db, userStore, catalogStore, orderStore := initStore(cfg)
	defer db.Close()
	defer userStore.Close()
	defer catalogStore.Close()
	defer orderStore.Close()

	secretKey, err := getSecret(secretFilePath)
	if err != nil {
		zap.L().Fatal("error while reading secret key", zap.Error(err))
	}

	smsProvider, err := provider.New(cfg.ProviderName, provider.Config{
		APIKey: cfg.ProviderAPIKey,
		APIURL: cfg.ProviderAPIURL,
		Client: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		zap.L().Fatal("error while creating sms provider", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notify.NewHub()
	authService := &service.AuthServiceImpl{Store: userStore, SecretKey: secretKey}
	orderService := &service.OrderServiceImpl{
		Orders:       orderStore,
		Users:        userStore,
		Catalog:      catalogStore,
		Provider:     smsProvider,
		Hub:          hub,
		OrderTimeout: cfg.OrderTimeout,
	}
	expiryWorker := service.NewExpiryWorker(orderService, orderStore, cfg.SweepInterval)
	orderService.Scheduler = expiryWorker
	webhookService := &service.WebhookServiceImpl{Orders: orderStore, OrderService: orderService}

	wireFakeDelivery(ctx, smsProvider, webhookService)

	metrics.Register()

	err = expiryWorker.Restore(ctx)
	if err != nil {
		zap.L().Fatal("error while restoring expiry timers", zap.Error(err))
	}
	go expiryWorker.Run(ctx)

	r := handlers.NewRouter(authService, orderService, webhookService, hub, cfg.StreamHeartbeat)
	zap.L().Info("started server", zap.String("address", cfg.Address))
	err = http.ListenAndServe(cfg.Address, r)
	if err != nil && err != http.ErrServerClosed {
		zap.L().Fatal("error while starting server", zap.Error(err))
	}
}

func initStore(cfg internal.Config) (*sql.DB, storage.UserStorage, storage.CatalogStorage, storage.OrderStorage) {
	if cfg.DatabaseURI == "" {
		zap.L().Fatal("database URI must be configured")
	}
	db, err := sql.Open("pgx", cfg.DatabaseURI)
	if err != nil {
		zap.L().Fatal("database connection error", zap.Error(err))
	}
	err = storage.DoMigrations(db)
	if err != nil {
		zap.L().Fatal("running migrations error", zap.Error(err))
	}
	userStore, err := storage.NewDBUserStorage(db)
	if err != nil {
		zap.L().Fatal("create user store error", zap.Error(err))
	}
	catalogStore, err := storage.NewDBCatalogStorage(db)
	if err != nil {
		zap.L().Fatal("create catalog store error", zap.Error(err))
	}
	orderStore, err := storage.NewDBOrderStorage(db)
	if err != nil {
		zap.L().Fatal("create order store error", zap.Error(err))
	}
	return db, userStore, catalogStore, orderStore
}

// wireFakeDelivery feeds the fake provider's synthetic messages into the
// regular webhook pipeline, so a local run exercises the same code path as a
// real vendor callback.
func wireFakeDelivery(ctx context.Context, smsProvider provider.Provider, webhookService service.WebhookService) {
	fake, ok := smsProvider.(*provider.Fake)
	if !ok {
		return
	}
	fake.OnMessage = func(externalOrderID, phoneNumber, text string) {
		payload, err := json.Marshal(map[string]string{
			"external_order_id": externalOrderID,
			"phone":             phoneNumber,
			"text":              text,
		})
		if err != nil {
			zap.L().Error("error while building fake callback", zap.Error(err))
			return
		}
		_, err = webhookService.ProcessWebhook(ctx, fake.Name(), payload)
		if err != nil {
			zap.L().Error("error while processing fake callback", zap.Error(err))
		}
	}
}

func getSecret(path string) ([]byte, error) {
	if path == "" {
		// Only for tests.
		return []byte("my secret key"), nil
	}
	return os.ReadFile(path)
}
