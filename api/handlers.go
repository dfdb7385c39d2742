package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"givevault/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// unbounded is reported for max deposit/mint when the vault imposes no limit
var unbounded = decimal.NewFromInt(-1)

type summaryResponse struct {
	VaultID       string          `json:"vault_id"`
	Address       models.Address  `json:"address"`
	Asset         string          `json:"asset"`
	Admin         models.Address  `json:"admin"`
	Module        models.Address  `json:"module"`
	Forwarder     models.Address  `json:"forwarder"`
	Beneficiary   models.Address  `json:"beneficiary"`
	Paused        bool            `json:"paused"`
	TotalSupply   decimal.Decimal `json:"total_supply"`
	IdleReserve   decimal.Decimal `json:"idle_reserve"`
	ManagedAssets decimal.Decimal `json:"managed_assets"`
	TotalAssets   decimal.Decimal `json:"total_assets"`
	TotalDonated  decimal.Decimal `json:"total_donated"`
}

type balanceResponse struct {
	Holder      models.Address  `json:"holder"`
	Shares      decimal.Decimal `json:"shares"`
	Assets      decimal.Decimal `json:"assets"`
	MaxDeposit  decimal.Decimal `json:"max_deposit"`
	MaxMint     decimal.Decimal `json:"max_mint"`
	MaxWithdraw decimal.Decimal `json:"max_withdraw"`
	MaxRedeem   decimal.Decimal `json:"max_redeem"`
}

type depositRequest struct {
	Receiver models.Address  `json:"receiver"`
	Assets   decimal.Decimal `json:"assets"`
	Shares   decimal.Decimal `json:"shares"`
}

type withdrawRequest struct {
	Receiver models.Address  `json:"receiver"`
	Owner    models.Address  `json:"owner"`
	Assets   decimal.Decimal `json:"assets"`
	Shares   decimal.Decimal `json:"shares"`
}

type approveRequest struct {
	Spender models.Address  `json:"spender"`
	Shares  decimal.Decimal `json:"shares"`
}

type transferRequest struct {
	To     models.Address  `json:"to"`
	Shares decimal.Decimal `json:"shares"`
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

type beneficiaryRequest struct {
	Beneficiary models.Address `json:"beneficiary"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type faucetRequest struct {
	Holder models.Address  `json:"holder"`
	Amount decimal.Decimal `json:"amount"`
}

type flowResponse struct {
	Assets decimal.Decimal `json:"assets"`
	Shares decimal.Decimal `json:"shares"`
}

func callerOf(r *http.Request) (models.Address, error) {
	caller := models.NewAddress(r.Header.Get(CallerHeader))
	if caller.IsZero() {
		return models.ZeroAddress, errMissingCaller
	}
	return caller, nil
}

// decode reads the JSON body into dst. It writes the error response itself and reports whether
// the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// orSelf defaults an omitted party to the caller
func orSelf(addr, caller models.Address) models.Address {
	if addr.IsZero() {
		return caller
	}
	return models.NewAddress(string(addr))
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return limit, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "vault": s.ledger.ID()})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Summary(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	st := summary.State
	writeJSON(w, http.StatusOK, summaryResponse{
		VaultID:       st.ID,
		Address:       st.Address,
		Asset:         st.Asset,
		Admin:         st.Admin,
		Module:        st.Module,
		Forwarder:     st.Forwarder,
		Beneficiary:   st.Beneficiary,
		Paused:        st.Paused,
		TotalSupply:   st.ShareSupply,
		IdleReserve:   st.IdleReserve,
		ManagedAssets: summary.ManagedAssets,
		TotalAssets:   summary.TotalAssets,
		TotalDonated:  st.TotalDonated,
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ledger.Positions(r.Context())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := models.NewAddress(r.PathValue("holder"))

	shares, err := s.ledger.BalanceOf(ctx, holder)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	assets, err := s.ledger.ConvertToAssets(ctx, shares)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	maxWithdraw, err := s.ledger.MaxWithdraw(ctx, holder)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	maxDeposit, depositLimited, err := s.ledger.MaxDeposit(ctx, holder)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	maxMint, mintLimited, err := s.ledger.MaxMint(ctx, holder)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	maxRedeem, err := s.ledger.MaxRedeem(ctx, holder)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	if !depositLimited {
		maxDeposit = unbounded
	}
	if !mintLimited {
		maxMint = unbounded
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Holder:      holder,
		Shares:      shares,
		Assets:      assets,
		MaxDeposit:  maxDeposit,
		MaxMint:     maxMint,
		MaxWithdraw: maxWithdraw,
		MaxRedeem:   maxRedeem,
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner := models.NewAddress(r.PathValue("owner"))
	spender := models.NewAddress(r.PathValue("spender"))

	shares, err := s.ledger.Allowance(r.Context(), owner, spender)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "spender": spender, "shares": shares})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := models.NewAddress(r.URL.Query().Get("actor"))

	records, err := s.ledger.Records(r.Context(), actor, limit)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleHarvestRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs, err := s.ledger.HarvestRuns(r.Context(), limit)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount query parameter must be an integer")
		return
	}

	ctx := r.Context()
	var result flowResponse
	switch r.PathValue("operation") {
	case "deposit":
		result.Assets = amount
		result.Shares, err = s.ledger.PreviewDeposit(ctx, amount)
	case "mint":
		result.Shares = amount
		result.Assets, err = s.ledger.PreviewMint(ctx, amount)
	case "withdraw":
		result.Assets = amount
		result.Shares, err = s.ledger.PreviewWithdraw(ctx, amount)
	case "redeem":
		result.Shares = amount
		result.Assets, err = s.ledger.PreviewRedeem(ctx, amount)
	default:
		writeError(w, http.StatusNotFound, "unknown preview operation")
		return
	}
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}

	shares, err := s.ledger.Deposit(r.Context(), caller, orSelf(req.Receiver, caller), req.Assets)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Assets: req.Assets, Shares: shares})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}

	assets, err := s.ledger.Mint(r.Context(), caller, orSelf(req.Receiver, caller), req.Shares)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Assets: assets, Shares: req.Shares})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req withdrawRequest
	if !decode(w, r, &req) {
		return
	}

	shares, err := s.ledger.Withdraw(r.Context(), caller, orSelf(req.Receiver, caller), orSelf(req.Owner, caller), req.Assets)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Assets: req.Assets, Shares: shares})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req withdrawRequest
	if !decode(w, r, &req) {
		return
	}

	assets, err := s.ledger.Redeem(r.Context(), caller, orSelf(req.Receiver, caller), orSelf(req.Owner, caller), req.Shares)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Assets: assets, Shares: req.Shares})
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	donated, err := s.ledger.Harvest(r.Context(), caller)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"donated": donated})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req approveRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.ledger.Approve(r.Context(), caller, models.NewAddress(string(req.Spender)), req.Shares); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req transferRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.ledger.TransferShares(r.Context(), caller, models.NewAddress(string(req.To)), req.Shares); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req pauseRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.ledger.SetPaused(r.Context(), caller, req.Paused); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBeneficiary(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req beneficiaryRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.ledger.SetBeneficiary(r.Context(), caller, models.NewAddress(string(req.Beneficiary))); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEmergencyDivest(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}

	returned, err := s.ledger.EmergencyDivest(r.Context(), caller, req.Amount)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"returned": returned})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	var req faucetRequest
	if !decode(w, r, &req) {
		return
	}

	holder := orSelf(req.Holder, caller)
	if err := s.faucet.Issue(holder, req.Amount); err != nil {
		writeLedgerError(w, r, err)
		return
	}
	log.WithFields(log.Fields{
		"caller": caller,
		"holder": holder,
		"amount": req.Amount.String(),
	}).Info("Faucet issued test funds")
	writeJSON(w, http.StatusOK, map[string]any{"holder": holder, "issued": req.Amount})
}
