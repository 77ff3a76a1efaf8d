package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	infralogger "github.com/wepublish/dorfkoenig/infrastructure/logger"
	"github.com/wepublish/dorfkoenig/infrastructure/signature"
	"github.com/wepublish/dorfkoenig/internal/analyzer"
	"github.com/wepublish/dorfkoenig/internal/compose"
	"github.com/wepublish/dorfkoenig/internal/config"
	"github.com/wepublish/dorfkoenig/internal/database"
	"github.com/wepublish/dorfkoenig/internal/extractor"
	"github.com/wepublish/dorfkoenig/internal/llm"
	"github.com/wepublish/dorfkoenig/internal/notify"
	"github.com/wepublish/dorfkoenig/internal/scout"
	"github.com/wepublish/dorfkoenig/internal/scrape"
	"github.com/wepublish/dorfkoenig/internal/telemetry"
	"github.com/wepublish/dorfkoenig/internal/units"
	"github.com/wepublish/dorfkoenig/internal/verification"
)

var errWhatsAppDisabled = errors.New("whatsapp messaging is not configured")

// Services holds the wired domain services.
type Services struct {
	Telemetry    *telemetry.Provider
	ScoutRepo    *database.ScoutRepository
	Executions   *database.ExecutionRepository
	Units        *database.UnitRepository
	Scouts       *scout.Service
	Executor     *scout.Executor
	UnitService  *units.Service
	Verification *verification.Service
	Compose      *compose.Service
}

// SetupServices builds the collaborators and domain services. rdb may be nil.
func SetupServices(
	ctx context.Context,
	cfg *config.Config,
	db *sqlx.DB,
	rdb *goredis.Client,
	log infralogger.Logger,
) (*Services, error) {
	tel := telemetry.NewProvider(prometheus.NewRegistry())

	chat, err := llm.NewChat(llm.ChatConfig{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		BaseURL:        cfg.LLM.BaseURL,
		MaxRetries:     cfg.LLM.MaxRetries,
		RequestsPerSec: cfg.LLM.RequestsPerSec,
		Timeout:        cfg.LLM.Timeout,
		OnError:        tel.RecordCollaboratorError,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("chat client: %w", err)
	}

	embedder, err := llm.NewGeminiEmbedder(ctx, llm.EmbedderConfig{
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		OnError:    tel.RecordCollaboratorError,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	scoutRepo := database.NewScoutRepository(db)
	executionRepo := database.NewExecutionRepository(db)
	unitRepo := database.NewUnitRepository(db)
	draftRepo := database.NewDraftRepository(db)

	ext := extractor.New(chat, embedder, unitRepo, log)
	scraper := newScraper(cfg, rdb, log)

	executor := scout.NewExecutor(scout.Deps{
		Scouts:     scoutRepo,
		Executions: executionRepo,
		Scraper:    scraper,
		Analyzer:   analyzer.New(chat, log),
		Embedder:   embedder,
		Extractor:  ext,
		Mailer: notify.NewResend(notify.ResendConfig{
			APIKey: cfg.Email.APIKey,
			From:   cfg.Email.From,
		}),
		Telemetry: tel,
		Logger:    log,
	})

	var limiter units.Limiter
	if rdb != nil && cfg.Uploads.HourlyLimit > 0 {
		limiter = units.NewRedisLimiter(rdb, cfg.Uploads.HourlyLimit, units.UploadWindow)
	}

	directory, err := verification.ParseDirectory(cfg.Correspondents.JSON)
	if err != nil {
		return nil, fmt.Errorf("correspondents: %w", err)
	}

	var messenger verification.Messenger = disabledMessenger{}
	if cfg.VerificationEnabled() {
		messenger = notify.NewWhatsApp(notify.WhatsAppConfig{
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			APIToken:      cfg.WhatsApp.APIToken,
			APIVersion:    cfg.WhatsApp.APIVersion,
		})
	} else {
		log.Warn("WhatsApp not configured, draft verification cannot be sent")
	}

	verifier := verification.NewService(verification.Deps{
		Drafts:      draftRepo,
		Messenger:   messenger,
		Directory:   directory,
		Signer:      signature.NewSigner(cfg.WhatsApp.AppSecret),
		VerifyToken: cfg.WhatsApp.VerifyToken,
		Telemetry:   tel,
		Logger:      log,
	})

	log.Info("Services initialized",
		infralogger.String("scraper", cfg.Scraper.Provider),
		infralogger.Int("villages", len(directory)),
		infralogger.Bool("upload_limit", limiter != nil),
	)

	return &Services{
		Telemetry:    tel,
		ScoutRepo:    scoutRepo,
		Executions:   executionRepo,
		Units:        unitRepo,
		Scouts:       scout.NewService(scoutRepo),
		Executor:     executor,
		UnitService:  units.NewService(unitRepo, embedder, ext, limiter, log),
		Verification: verifier,
		Compose: compose.NewService(compose.Deps{
			Chat:    chat,
			Units:   unitRepo,
			Sources: scraper,
			Logger:  log,
		}),
	}, nil
}

// newScraper returns Firecrawl with the direct scraper as fallback, or the
// direct scraper alone.
func newScraper(cfg *config.Config, rdb *goredis.Client, log infralogger.Logger) scrape.Scraper {
	direct := scrape.NewDirect(rdb, log)
	if cfg.Scraper.Provider == config.ScraperDirect {
		return direct
	}
	return &scrape.Fallback{
		Primary: scrape.NewFirecrawl(scrape.FirecrawlConfig{
			APIKey:  cfg.Scraper.APIKey,
			BaseURL: cfg.Scraper.BaseURL,
		}, log),
		Secondary: direct,
		Log:       log,
	}
}

type disabledMessenger struct{}

func (disabledMessenger) Send(context.Context, notify.Message) (string, error) {
	return "", errWhatsAppDisabled
}
