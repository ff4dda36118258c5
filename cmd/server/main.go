package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"school-library/internal/config"
	"school-library/internal/database"
	"school-library/internal/handler"
	"school-library/internal/middleware"
	"school-library/internal/queue"
	"school-library/internal/repository"
	"school-library/internal/router"
	"school-library/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; deployments set real environment variables

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	books := repository.NewBookRepo(db)
	loans := repository.NewLoanRepo(db)

	loanSvc := service.NewLoanService(books, users, loans, service.QueuePublisher{}, cfg.LoanPeriodDays, cfg.FinePerDayCents)

	authH := handler.NewAuthHandler(cfg, users)
	usersH := handler.NewUsersHandler(cfg, users)
	booksH := handler.NewBooksHandler(books)
	loansH := handler.NewLoansHandler(loanSvc, books, users)
	reportsH := handler.NewReportsHandler(books, users, loans, cfg.FinePerDayCents)
	impexH := handler.NewImportExportHandler(cfg, books, users, loans)

	session := middleware.Session(cfg.JWTSecret, users)

	// Redis is optional.  Without it the service still runs, just with no
	// rate limiting and no response cache.
	var limiter, cache []echo.MiddlewareFunc
	if rdb := config.NewRedisClient(); rdb != nil {
		if rl := config.LoadRateLimitConfig(); rl.Enabled {
			limiter = append(limiter, middleware.NewTokenBucket(rl, rdb))
		}
		if cc := config.LoadCacheConfig(); cc.Enabled {
			cache = append(cache, middleware.NewRedisCache(cc, rdb))
		}
	}

	e := echo.New()
	e.HideBanner = true

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, session, limiter...)
	router.RegisterCatalog(e, booksH, session, cache...)
	router.RegisterLoans(e, loansH, reportsH, session)
	router.RegisterUsers(e, usersH, impexH, session)

	// Tail loan lifecycle events from RabbitMQ into the audit log.  The
	// consumer reconnects on its own; a permanent failure only loses the
	// audit trail, not the API.
	go func() {
		if err := queue.StartLoanConsumer(); err != nil {
			log.Printf("loan consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
