// Package api exposes a vault ledger over HTTP/JSON. The caller identity of every request
// is taken from the X-Caller header.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"givevault/models"
	"givevault/service"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// CallerHeader carries the identity a request acts as
const CallerHeader = "X-Caller"

// Ledger is the part of service.Vault the HTTP surface drives
type Ledger interface {
	ID() string
	Address() models.Address

	Deposit(ctx context.Context, caller, receiver models.Address, assets decimal.Decimal) (decimal.Decimal, error)
	Mint(ctx context.Context, caller, receiver models.Address, shares decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, caller, receiver, owner models.Address, assets decimal.Decimal) (decimal.Decimal, error)
	Redeem(ctx context.Context, caller, receiver, owner models.Address, shares decimal.Decimal) (decimal.Decimal, error)
	Harvest(ctx context.Context, caller models.Address) (decimal.Decimal, error)
	Approve(ctx context.Context, owner, spender models.Address, shares decimal.Decimal) error
	TransferShares(ctx context.Context, from, to models.Address, shares decimal.Decimal) error

	SetBeneficiary(ctx context.Context, caller, beneficiary models.Address) error
	SetPaused(ctx context.Context, caller models.Address, paused bool) error
	EmergencyDivest(ctx context.Context, caller models.Address, amount decimal.Decimal) (decimal.Decimal, error)

	Summary(ctx context.Context) (*models.VaultSummary, error)
	BalanceOf(ctx context.Context, holder models.Address) (decimal.Decimal, error)
	Allowance(ctx context.Context, owner, spender models.Address) (decimal.Decimal, error)
	Positions(ctx context.Context) ([]*models.SharePosition, error)
	Records(ctx context.Context, actor models.Address, limit int) ([]*models.LedgerRecord, error)
	HarvestRuns(ctx context.Context, limit int) ([]*models.HarvestRun, error)
	ConvertToAssets(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error)
	PreviewDeposit(ctx context.Context, assets decimal.Decimal) (decimal.Decimal, error)
	PreviewMint(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error)
	PreviewWithdraw(ctx context.Context, assets decimal.Decimal) (decimal.Decimal, error)
	PreviewRedeem(ctx context.Context, shares decimal.Decimal) (decimal.Decimal, error)
	MaxDeposit(ctx context.Context, receiver models.Address) (decimal.Decimal, bool, error)
	MaxMint(ctx context.Context, receiver models.Address) (decimal.Decimal, bool, error)
	MaxWithdraw(ctx context.Context, owner models.Address) (decimal.Decimal, error)
	MaxRedeem(ctx context.Context, owner models.Address) (decimal.Decimal, error)
}

// Faucet issues test funds onto the asset book
type Faucet interface {
	Issue(holder models.Address, amount decimal.Decimal) error
}

// DefaultTurnWait bounds how long a request queues for the ledger before it gets 503
const DefaultTurnWait = 10 * time.Second

// Server serves the ledger API
type Server struct {
	ledger     Ledger
	turnstile  *service.Turnstile
	faucet     Faucet
	httpServer *http.Server
}

// ServerOption customizes a Server
type ServerOption func(*Server)

// WithTurnstile shares a turnstile with other callers of the same ledger
func WithTurnstile(t *service.Turnstile) ServerOption {
	return func(s *Server) {
		s.turnstile = t
	}
}

// WithFaucet enables POST /faucet
func WithFaucet(f Faucet) ServerOption {
	return func(s *Server) {
		s.faucet = f
	}
}

// NewServer creates a server listening on addr
func NewServer(addr string, ledger Ledger, opts ...ServerOption) *Server {
	s := &Server{ledger: ledger}
	for _, opt := range opts {
		opt(s)
	}
	if s.turnstile == nil {
		s.turnstile = service.NewTurnstile(DefaultTurnWait)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in logging and panic recovery
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Ledger routes take turns; the vault refuses overlapping operations
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.takeTurn(h))
	}

	handle("GET /vault", s.handleSummary)
	handle("GET /vault/positions", s.handlePositions)
	handle("GET /vault/balances/{holder}", s.handleBalance)
	handle("GET /vault/allowances/{owner}/{spender}", s.handleAllowance)
	handle("GET /vault/records", s.handleRecords)
	handle("GET /vault/harvests", s.handleHarvestRuns)
	handle("GET /vault/preview/{operation}", s.handlePreview)

	handle("POST /vault/deposit", s.handleDeposit)
	handle("POST /vault/mint", s.handleMint)
	handle("POST /vault/withdraw", s.handleWithdraw)
	handle("POST /vault/redeem", s.handleRedeem)
	handle("POST /vault/harvest", s.handleHarvest)
	handle("POST /vault/approve", s.handleApprove)
	handle("POST /vault/transfer", s.handleTransfer)

	handle("POST /admin/pause", s.handlePause)
	handle("POST /admin/beneficiary", s.handleBeneficiary)
	handle("POST /admin/emergency-divest", s.handleEmergencyDivest)

	if s.faucet != nil {
		mux.HandleFunc("POST /faucet", s.handleFaucet)
	}

	return withRequestLogging(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}

// takeTurn runs h once the ledger is free
func (s *Server) takeTurn(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.turnstile.Do(r.Context(), func(ctx context.Context) error {
			h(w, r.WithContext(ctx))
			return nil
		})
		if err != nil {
			writeLedgerError(w, r, err)
		}
	}
}

// statusRecorder captures the response status for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				log.WithFields(log.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"panic":  p,
				}).Error("Handler panicked")
				writeError(rec, http.StatusInternalServerError, "internal error")
			}

			log.WithFields(log.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"caller":   r.Header.Get(CallerHeader),
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("Handled request")
		}()

		next.ServeHTTP(rec, r)
	})
}
