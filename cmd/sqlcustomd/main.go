package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/sqlcustom/audit"
	"github.com/tomyedwab/sqlcustom/config"
	"github.com/tomyedwab/sqlcustom/protocol"
	"github.com/tomyedwab/sqlcustom/server"
	"github.com/tomyedwab/sqlcustom/session"
)

func main() {
	var configPath = flag.String("config", "sqlcustom.yaml", "Path to the service configuration")
	var issueToken = flag.String("issue-token", "", "Print a caller token for this subject and exit")
	var tokenProtocols = flag.String("token-protocols", "", "Comma-separated protocols the issued token may use (default all)")
	var tokenTTL = flag.Duration("token-ttl", 0, "Lifetime of the issued token (default no expiry)")
	flag.Parse()

	// 1. Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	var secretKey []byte
	if cfg.JWTSecretFile != "" {
		secretKey, err = server.LoadSecretKey(cfg.JWTSecretFile)
		if err != nil {
			logger.Error("Failed to load JWT secret key", "error", err)
			os.Exit(1)
		}
	}

	if *issueToken != "" {
		if secretKey == nil {
			logger.Error("Cannot issue a token without jwtSecretFile")
			os.Exit(1)
		}
		var protocols []string
		if *tokenProtocols != "" {
			protocols = strings.Split(*tokenProtocols, ",")
		}
		token, err := server.IssueToken(secretKey, *issueToken, protocols, *tokenTTL)
		if err != nil {
			logger.Error("Failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger.Info("Starting SQL call service", "config", *configPath)

	// 2. Open one session pool per database
	sessions := session.NewManager()
	defer sessions.Close()
	for _, d := range cfg.Databases {
		pool, err := session.Open(d.ID, d.Source(os.Getenv), d.Options(), logger)
		if err != nil {
			logger.Error("Failed to open database", "database", d.ID, "error", err)
			os.Exit(1)
		}
		if err := sessions.Add(pool); err != nil {
			logger.Error("Failed to register database", "database", d.ID, "error", err)
			os.Exit(1)
		}
	}

	// 3. Load call files
	protocols := make([]*protocol.Protocol, 0, len(cfg.Protocols))
	for _, pc := range cfg.Protocols {
		p, err := protocol.New(protocol.Config{
			Name:     pc.Name,
			Database: pc.Database,
			Options:  pc.Options,
			Path:     cfg.Path,
			Sessions: sessions,
			Logger:   logger,
		})
		if err != nil {
			logger.Error("Failed to start protocol", "protocol", pc.Name, "error", err)
			os.Exit(1)
		}
		protocols = append(protocols, p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Audit log
	var auditLogger *audit.Logger
	if cfg.AuditDatabase != "" {
		auditDatabase, err := sqlx.Connect("sqlite3", cfg.AuditDatabase)
		if err != nil {
			logger.Error("Failed to open audit database", "error", err)
			os.Exit(1)
		}
		defer auditDatabase.Close()
		auditLogger, err = audit.NewLogger(auditDatabase)
		if err != nil {
			logger.Error("Failed to initialize audit logger", "error", err)
			os.Exit(1)
		}
		if cfg.AuditRetention > 0 {
			go pruneAudit(ctx, auditLogger, cfg.AuditRetention, logger)
		}
		logger.Info("Audit logger initialized", "path", cfg.AuditDatabase)
	}

	// 5. HTTP server
	srv, err := server.New(server.Config{
		Listen:    cfg.Listen,
		SecretKey: secretKey,
		Protocols: protocols,
		Audit:     auditLogger,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received signal, initiating graceful shutdown...", "signal", sig.String())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", "error", err)
		}
		cancel()
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
	<-ctx.Done()

	logger.Info("SQL call service stopped")
}

func pruneAudit(ctx context.Context, a *audit.Logger, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		deleted, err := a.DeleteOldEvents(retention)
		if err != nil {
			logger.Error("Failed to prune audit events", "error", err)
		} else if deleted > 0 {
			logger.Info("Pruned audit events", "deleted", deleted)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
