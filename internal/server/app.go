// Package server initializes and runs the inkpost API server.
// It opens the database, applies migrations, wires the services and runs the
// HTTP server until an OS signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/inkpost/internal/logging"
	"github.com/dmitrijs2005/inkpost/internal/server/auth"
	"github.com/dmitrijs2005/inkpost/internal/server/config"
	"github.com/dmitrijs2005/inkpost/internal/server/mailer"
	"github.com/dmitrijs2005/inkpost/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/inkpost/internal/server/rest"
	"github.com/dmitrijs2005/inkpost/internal/server/services"
	"github.com/dmitrijs2005/inkpost/internal/timex"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authService *services.AuthService
	blogService *services.BlogService
	cookies     rest.CookieConfig
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	passwords, err := auth.NewPasswordHasher(c.BcryptCost)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("password hasher init error: %w", err)
	}

	clock := timex.SystemClock{}
	codec := auth.NewCodec([]byte(c.SecretKey), c.AccessTokenValidityDuration, clock, logger)

	var sender mailer.Sender = mailer.NewLogSender(logger)
	if c.SendGridAPIKey != "" {
		sender = mailer.NewSendGridSender(c.SendGridAPIKey, c.MailFrom, c.MailFromName, logger)
	}
	m := mailer.New(sender, c.FrontendURL, c.VerificationTokenValidityDuration, c.ResetTokenValidityDuration, logger)

	sessions := services.NewSessionManager(db, rm, codec, passwords, clock, c, logger)
	flow := services.NewVerificationFlow(db, rm, sessions, passwords, clock, c, logger)
	as := services.NewAuthService(db, rm, sessions, flow, passwords, m, clock, c, logger)
	bs := services.NewBlogService(db, rm, clock, logger)

	// cookie lifetimes follow the tokens they carry
	cookies := rest.CookieConfig{
		Domain:     c.CookieDomain,
		Secure:     c.CookieSecure,
		AccessTTL:  codec.TTL(),
		RefreshTTL: sessions.RefreshTTL(),
	}

	return &App{config: c, logger: logger, db: db, authService: as, blogService: bs, cookies: cookies}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	h := rest.NewHandler(app.authService, app.blogService, app.cookies, app.logger)

	s := rest.NewServer(app.config.EndpointAddrHTTP, rest.NewRouter(h), app.config.ShutdownTimeout, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives or the server fails, then
// closes the database.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "failed to close database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
