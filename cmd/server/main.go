package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zeroep-backend/internal/api"
	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/config"
	"zeroep-backend/internal/logger"
	"zeroep-backend/internal/metrics"
	"zeroep-backend/internal/realtime"
	"zeroep-backend/internal/repository"
	"zeroep-backend/internal/service"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// 1. Carregar o arquivo .env, se existir
	if err := godotenv.Load(); err != nil {
		log.Printf("Aviso: Não foi possível carregar o arquivo .env: %v. (Usando variáveis de ambiente existentes)", err)
	}

	// 2. Carregar Configuração
	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("Falha ao carregar configuração: %v", err)
	}

	lg, err := logger.NewLogger(&cfg)
	if err != nil {
		log.Fatalf("Falha ao iniciar logger: %v", err)
	}
	defer lg.Sync()

	if err := run(&cfg, lg); err != nil {
		lg.Errorw("servidor encerrado com erro", "error", err)
		lg.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, lg *logger.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registrar métricas: %w", err)
	}

	// 3. Inicializar Camada de Repositório
	store, closeStore, err := openStore(cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 4. Inicializar Camada de Autenticação
	tokenService, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("iniciar TokenService: %w", err)
	}
	verifier, err := auth.NewSignatureVerifier(cfg.SignatureScheme)
	if err != nil {
		return err
	}
	// interface nil desliga as provas; um ponteiro nil tipado não
	var proofs auth.ProofVerifier
	attester, err := auth.NewAttestationVerifier(cfg.AttesterPublicKey)
	if err != nil {
		return err
	}
	if attester != nil {
		proofs = attester
	}

	// 5. Inicializar Camada de Serviço
	guard := service.NewGuard(tokenService, store, cfg.LookupTimeout, m)
	authService := service.NewAuthService(store, tokenService, verifier, service.AuthOptions{
		ChallengeTTL:  cfg.ChallengeTTL,
		LookupTimeout: cfg.LookupTimeout,
		Proofs:        proofs,
		Logger:        lg.With("component", "auth"),
		Metrics:       m,
	})
	channelService := service.NewChannelService(store, guard, service.ChannelOptions{
		RequireVerified: cfg.RequireVerified,
		MaxGroupSize:    cfg.MaxGroupSize,
		LookupTimeout:   cfg.LookupTimeout,
		Logger:          lg.With("component", "channels"),
		Metrics:         m,
	})

	// 6. Realtime
	hub := realtime.NewHub(m)
	protocol := realtime.NewProtocol(guard, store, hub, realtime.Options{
		Logger:  lg.With("component", "realtime"),
		Metrics: m,
	})

	// 7. Inicializar Camada de API
	connCtx, cancelConns := context.WithCancel(context.Background())
	defer cancelConns()
	handler := api.NewHandler(authService, channelService, guard, protocol, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
		BaseContext:    connCtx,
		Logger:         lg.With("component", "api"),
		Metrics:        m,
		Gatherer:       reg,
	})

	// 8. Configurar Servidor HTTP
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Infow("servidor iniciado", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Aguardar sinal de interrupção
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("erro ao iniciar servidor: %w", err)
	case sig := <-quit:
		lg.Infow("recebido sinal de desligamento, encerrando servidor", "signal", sig.String())
	}

	// Conexões websocket são sequestradas e não entram no Shutdown
	cancelConns()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("erro no graceful shutdown: %w", err)
	}
	lg.Infow("servidor encerrado")
	return nil
}

// openStore usa Postgres quando DATABASE_URL está definido e memória caso contrário
func openStore(cfg *config.Config, lg *logger.Logger) (repository.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		lg.Warnw("DATABASE_URL vazio, usando armazenamento em memória")
		return repository.NewInMemoryStore(), func() {}, nil
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInit()

	store, err := repository.NewPostgresStore(initCtx, cfg.DatabaseURL, lg.With("component", "postgres"))
	if err != nil {
		return nil, nil, fmt.Errorf("conectar ao banco de dados: %w", err)
	}
	lg.Infow("conectado ao PostgreSQL")

	migrationSQL, err := os.ReadFile(cfg.MigrationsPath)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ler arquivo de migração: %w", err)
	}
	if err := store.RunMigrations(initCtx, string(migrationSQL)); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("aplicar migrações: %w", err)
	}
	lg.Infow("migrações do banco de dados aplicadas", "path", cfg.MigrationsPath)
	return store, store.Close, nil
}
