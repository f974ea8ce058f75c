package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/race-bet-ledger/internal/ledger-service/dto"
	"github.com/radieske/race-bet-ledger/internal/ledger/account"
	"github.com/radieske/race-bet-ledger/internal/ledger/bet"
	"github.com/radieske/race-bet-ledger/internal/ledger/domain"
	"github.com/radieske/race-bet-ledger/internal/ledger/market"
	"github.com/radieske/race-bet-ledger/internal/ledger/odds"
	ev "github.com/radieske/race-bet-ledger/pkg/contracts/events"
)

// Publisher é a fatia de publicação de eventos que o handler precisa.
type Publisher interface {
	PublishBetPlaced(context.Context, ev.BetPlaced) error
	PublishMarketSettled(context.Context, ev.MarketSettled) error
	PublishMarketClosed(context.Context, ev.MarketClosed) error
}

// Server expõe a API REST do ledger. Toda validação de payload acontece
// aqui, antes de qualquer chamada ao core: o core só recebe structs tipados.
type Server struct {
	log      *zap.Logger
	accounts *account.Manager
	markets  *market.Manager
	bets     *bet.Manager
	odds     *odds.Provider
	publ     Publisher
}

func NewServer(log *zap.Logger, a *account.Manager, m *market.Manager, b *bet.Manager, o *odds.Provider, p Publisher) *Server {
	return &Server{log: log, accounts: a, markets: m, bets: b, odds: o, publ: p}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/v1/accounts", s.createAccount)
	r.Get("/v1/accounts/{id}", s.getAccount)
	r.Get("/v1/accounts/{id}/bets", s.listUserBets)
	r.Get("/v1/accounts/{id}/transactions", s.listTransactions)

	r.Post("/v1/markets", s.createMarket)
	r.Get("/v1/markets", s.listMarkets)
	r.Get("/v1/markets/{id}", s.getMarket)
	r.Get("/v1/markets/{id}/bets", s.listMarketBets)
	r.Post("/v1/markets/{id}/close", s.closeMarket)
	r.Post("/v1/markets/{id}/settle", s.settleMarket)

	r.Post("/v1/bets", s.placeBet)
	r.Get("/v1/bets/{id}", s.getBet)

	r.Get("/v1/selections/{id}/odds", s.getSelectionOdds)

	return r
}

func (s *Server) getSelectionOdds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cur, err := s.odds.CurrentOdds(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"selection_id": id, "odds": cur})
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if req.DisplayName == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "display_name required"})
		return
	}
	acc, err := s.accounts.Create(r.Context(), req.DisplayName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) listUserBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.bets.ListByUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.accounts.ListTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	in := market.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		EventRef:    req.EventRef,
		ClosingTime: req.ClosingTime,
	}
	for _, sel := range req.Selections {
		in.Selections = append(in.Selections, market.SelectionSpec{Title: sel.Title, Odds: sel.Odds})
	}
	mkt, sels, err := s.markets.Create(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.MarketResponse{Market: mkt, Selections: sels})
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	var status *domain.MarketStatus
	if q := r.URL.Query().Get("status"); q != "" {
		st := domain.MarketStatus(q)
		status = &st
	}
	mkts, err := s.markets.List(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mkts)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	mkt, sels, err := s.markets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.MarketResponse{Market: mkt, Selections: sels})
}

func (s *Server) listMarketBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.bets.ListByMarket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) closeMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.markets.Close(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if perr := s.publ.PublishMarketClosed(r.Context(), ev.MarketClosed{
		MarketID:      id,
		RefundedCount: res.RefundedCount,
	}); perr != nil {
		s.log.Warn("publish market_closed", zap.String("marketId", id), zap.Error(perr))
	}

	writeJSON(w, http.StatusOK, dto.CloseMarketResponse{Market: res.Market, RefundedCount: res.RefundedCount})
}

func (s *Server) settleMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.SettleMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if req.WinningSelectionID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "winning_selection_id required"})
		return
	}

	res, err := s.markets.Settle(r.Context(), id, req.WinningSelectionID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if perr := s.publ.PublishMarketSettled(r.Context(), ev.MarketSettled{
		MarketID:           id,
		WinningSelectionID: req.WinningSelectionID,
		SettledBetCount:    res.SettledBetCount,
		WonBetCount:        res.WonBetCount,
		TotalPayoutCents:   res.TotalPayoutCents,
	}); perr != nil {
		s.log.Warn("publish market_settled", zap.String("marketId", id), zap.Error(perr))
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return
	}
	if req.UserID == "" || req.MarketID == "" || req.SelectionID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload"})
		return
	}

	b, err := s.bets.Place(r.Context(), req.UserID, req.MarketID, req.SelectionID, req.StakeCents)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if perr := s.publ.PublishBetPlaced(r.Context(), ev.BetPlaced{
		BetID:           b.ID,
		UserID:          b.UserID,
		MarketID:        b.MarketID,
		SelectionID:     b.SelectionID,
		StakeCents:      b.StakeCents,
		OddsAtPlacement: b.OddsAtPlacement,
	}); perr != nil {
		s.log.Warn("publish bet_placed", zap.String("betId", b.ID), zap.Error(perr))
	}

	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{Bet: b})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.bets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// writeError mapeia a taxonomia do ledger para status HTTP.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrMarketNotFound),
		errors.Is(err, domain.ErrBetNotFound),
		errors.Is(err, domain.ErrSelectionNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidMarketSpec),
		errors.Is(err, domain.ErrInvalidStake),
		errors.Is(err, domain.ErrSelectionMismatch):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrMarketNotOpen),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrTransactionConflict):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	default:
		s.log.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
