package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"storepay/internal/gateway"
	"storepay/internal/ratelimiter"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "1.0.0"

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	return zap.New(core).Sugar(), nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading configuration from the environment")
	}

	apiURL := envOr("EXTERNAL_URL", "http://localhost:8080")

	cfg := config{
		addr:        envOr("ADDR", ":8080"),
		env:         envOr("ENV", "development"),
		apiURL:      apiURL,
		frontendURL: envOr("FRONTEND_URL", "http://localhost:3000"),
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
		},
		rateLimiter: rateLimiterConfig{
			requestsPerTimeFrame: envOrInt("RATELIMITER_REQUESTS_COUNT", 20),
			timeFrame:            time.Second * 5,
			enabled:              envOr("RATE_LIMITER_ENABLED", "true") == "true",
		},
		razorpay: gateway.RazorpayConfig{
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		},
		phonepe: phonePeConfig{
			authMode: envOr("PHONEPE_AUTH_MODE", "salt"),
			salt: gateway.PhonePeConfig{
				MerchantID:  os.Getenv("PHONEPE_MERCHANT_ID"),
				SaltKey:     os.Getenv("PHONEPE_SALT_KEY"),
				SaltIndex:   envOr("PHONEPE_SALT_INDEX", "1"),
				BaseURL:     envOr("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"),
				RedirectURL: envOr("FRONTEND_URL", "http://localhost:3000") + "/payment/status",
				CallbackURL: apiURL + "/v1/webhooks/phonepe",
				WebhookUser: os.Getenv("PHONEPE_WEBHOOK_USER"),
				WebhookPass: os.Getenv("PHONEPE_WEBHOOK_PASS"),
			},
			oauth: gateway.PhonePeOAuthConfig{
				ClientID:      os.Getenv("PHONEPE_CLIENT_ID"),
				ClientSecret:  os.Getenv("PHONEPE_CLIENT_SECRET"),
				ClientVersion: envOr("PHONEPE_CLIENT_VERSION", "1"),
				MerchantID:    os.Getenv("PHONEPE_MERCHANT_ID"),
				AuthBaseURL:   envOr("PHONEPE_AUTH_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"),
				BaseURL:       envOr("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"),
				RedirectURL:   envOr("FRONTEND_URL", "http://localhost:3000") + "/payment/status",
				WebhookUser:   os.Getenv("PHONEPE_WEBHOOK_USER"),
				WebhookPass:   os.Getenv("PHONEPE_WEBHOOK_PASS"),
			},
		},
		cashfree: gateway.CashfreeConfig{
			AppID:     os.Getenv("CASHFREE_APP_ID"),
			SecretKey: os.Getenv("CASHFREE_SECRET_KEY"),
			BaseURL:   envOr("CASHFREE_BASE_URL", "https://sandbox.cashfree.com/pg"),
			ReturnURL: envOr("FRONTEND_URL", "http://localhost:3000") + "/payment/status",
		},
	}

	logger, err := NewLogger()
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer logger.Sync()

	router := gateway.NewRouter(logger)
	router.Register(gateway.NewRazorpayAdapter(cfg.razorpay, logger))
	router.Register(gateway.NewCashfreeAdapter(cfg.cashfree, logger))

	if cfg.phonepe.authMode == "oauth" {
		router.Register(gateway.NewPhonePeOAuthAdapter(cfg.phonepe.oauth, logger))
		logger.Infow("phonepe adapter registered", "mode", "oauth")
	} else {
		router.Register(gateway.NewPhonePeAdapter(cfg.phonepe.salt, logger))
		logger.Infow("phonepe adapter registered", "mode", "salt")
	}

	app := &application{
		config:   cfg,
		logger:   logger,
		gateways: router,
		rateLimiter: ratelimiter.NewFixedWindowLimiter(
			cfg.rateLimiter.requestsPerTimeFrame,
			cfg.rateLimiter.timeFrame,
		),
	}

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
