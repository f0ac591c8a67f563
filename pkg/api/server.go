package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/minjekim/auctionhouse/pkg/engine"
	"github.com/minjekim/auctionhouse/pkg/engine/asset"
	"github.com/minjekim/auctionhouse/pkg/engine/auction"
	"github.com/minjekim/auctionhouse/pkg/engine/extern"
	"github.com/minjekim/auctionhouse/pkg/engine/oracle"
)

// Server handles REST API and WebSocket connections.
type Server struct {
	eng    *engine.Engine
	feeds  *oracle.Registry
	router *mux.Router
	hub    *Hub

	allowedOrigins []string
}

// NewServer creates an API server over the engine. feeds is the same
// registry the engine consults; the API reads it for USD display values.
func NewServer(eng *engine.Engine, feeds *oracle.Registry, allowedOrigins []string) *Server {
	s := &Server{
		eng:            eng,
		feeds:          feeds,
		router:         mux.NewRouter(),
		hub:            NewHub(),
		allowedOrigins: allowedOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Auction endpoints
	api.HandleFunc("/auctions", s.handleListAuctions).Methods("GET")
	api.HandleFunc("/auctions", s.handleCreateAuction).Methods("POST")
	api.HandleFunc("/auctions/{contract}/{id}", s.handleGetAuction).Methods("GET")
	api.HandleFunc("/auctions/{contract}/{id}/bids", s.handleBid).Methods("POST")
	api.HandleFunc("/auctions/{contract}/{id}/settle", s.handleSettle).Methods("POST")

	// Refund ledger endpoints
	api.HandleFunc("/accounts/{address}/refunds/{asset}", s.handleGetPendingRefund).Methods("GET")
	api.HandleFunc("/refunds", s.handleRefund).Methods("POST")

	// Admin endpoints
	api.HandleFunc("/admin/feeds", s.handleSetFeed).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	log.Printf("[api] server starting on %s", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	all := s.eng.ListAuctions()
	out := make([]AuctionInfo, len(all))
	for i, a := range all {
		out[i] = s.auctionInfo(a)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	contract, id, err := auctionVars(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid auction key", err.Error())
		return
	}

	a, err := s.eng.GetAuction(contract, id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, s.auctionInfo(a))
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	seller, err := parseAddress(req.Seller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid seller", err.Error())
		return
	}
	contract, err := parseAddress(req.AssetContract)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset contract", err.Error())
		return
	}
	startPrice, err := parseAmount(req.StartPrice)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid start price", err.Error())
		return
	}
	biddingAsset, err := asset.FromHex(req.BiddingAsset)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid bidding asset", err.Error())
		return
	}

	err = s.eng.CreateAuction(seller, engine.CreateParams{
		AssetContract: contract,
		AssetID:       req.AssetID,
		StartPrice:    startPrice,
		BiddingAsset:  biddingAsset,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}

	log.Printf("[api] auction created: %s/%d by %s", contract.Hex(), req.AssetID, seller.Hex())
	w.WriteHeader(http.StatusCreated)
	respondJSON(w, map[string]string{"status": "created"})
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	contract, id, err := auctionVars(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid auction key", err.Error())
		return
	}

	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	bidder, err := parseAddress(req.Bidder)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid bidder", err.Error())
		return
	}

	accepted := true
	switch req.Mode {
	case engine.ModeLedger:
		value, perr := parseAmount(req.Value)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid value", perr.Error())
			return
		}
		minAccept := new(big.Int)
		if req.MinAccept != "" {
			if minAccept, perr = parseAmount(req.MinAccept); perr != nil {
				respondError(w, http.StatusBadRequest, "invalid minAccept", perr.Error())
				return
			}
		}
		err = s.eng.Bid(bidder, contract, id, minAccept, value)

	case engine.ModePush:
		value, perr := parseAmount(req.Value)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid value", perr.Error())
			return
		}
		err = s.eng.Bidding(bidder, contract, id, value)

	case engine.ModeERC20:
		amount, perr := parseAmount(req.Amount)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid amount", perr.Error())
			return
		}
		accepted, err = s.eng.BidERC20(bidder, contract, id, amount)

	case engine.ModeOracle:
		bidAsset, perr := asset.FromHex(req.BidAsset)
		if perr != nil {
			respondError(w, http.StatusBadRequest, "invalid bid asset", perr.Error())
			return
		}
		var amount, value *big.Int
		if req.Amount != "" {
			if amount, perr = parseAmount(req.Amount); perr != nil {
				respondError(w, http.StatusBadRequest, "invalid amount", perr.Error())
				return
			}
		}
		if req.Value != "" {
			if value, perr = parseAmount(req.Value); perr != nil {
				respondError(w, http.StatusBadRequest, "invalid value", perr.Error())
				return
			}
		}
		accepted, err = s.eng.BidWithOracle(bidder, contract, id, bidAsset, amount, value)

	default:
		respondError(w, http.StatusBadRequest, "unknown bid mode", req.Mode)
		return
	}

	if err != nil {
		respondEngineError(w, err)
		return
	}

	resp := BidResponse{Accepted: accepted, Status: "accepted"}
	if accepted {
		resp.BidID = uuid.NewString()
	} else {
		resp.Status = "discarded"
	}
	respondJSON(w, resp)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	contract, id, err := auctionVars(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid auction key", err.Error())
		return
	}

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}

	if err := s.eng.Settle(caller, contract, id); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "settled"})
}

func (s *Server) handleGetPendingRefund(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	account, err := parseAddress(vars["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	a, err := asset.FromHex(vars["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}

	pending := s.eng.PendingRefund(account, a)
	respondJSON(w, PendingRefundResponse{
		Account: account.Hex(),
		Asset:   a.Address().Hex(),
		Amount:  pending.String(),
	})
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	account, err := parseAddress(req.Account)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid account", err.Error())
		return
	}
	a, err := asset.FromHex(req.Asset)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}

	paid, err := s.eng.Refund(account, a)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	log.Printf("[api] refund withdrawn: %s asset=%s amount=%s", account.Hex(), a, paid)
	respondJSON(w, RefundResponse{
		Account: account.Hex(),
		Asset:   a.Address().Hex(),
		Amount:  paid.String(),
	})
}

func (s *Server) handleSetFeed(w http.ResponseWriter, r *http.Request) {
	var req SetFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	a, err := asset.FromHex(req.Asset)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}
	if req.Price <= 0 {
		respondError(w, http.StatusBadRequest, "invalid price", "price must be positive")
		return
	}

	if err := s.eng.SetFeed(caller, a, extern.NewStaticFeed(req.Price, req.Decimals)); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (wired to engine hooks)
// ==============================

// BroadcastBid pushes an accepted bid to subscribed clients.
func (s *Server) BroadcastBid(ev engine.BidEvent) {
	channel := auctionChannel(ev.Auction)
	msg := WSEvent{ID: uuid.NewString(), Type: "bid", Channel: channel, Data: ev}
	s.hub.BroadcastToChannel(channel, msg)
	s.hub.BroadcastToChannel("auctions", msg)
}

// BroadcastSettle pushes a settlement to subscribed clients.
func (s *Server) BroadcastSettle(ev engine.SettleEvent) {
	channel := auctionChannel(ev.Auction)
	msg := WSEvent{ID: uuid.NewString(), Type: "settle", Channel: channel, Data: ev}
	s.hub.BroadcastToChannel(channel, msg)
	s.hub.BroadcastToChannel("auctions", msg)
}

func auctionChannel(k auction.Key) string {
	return fmt.Sprintf("auction:%s/%d", k.Contract.Hex(), k.ID)
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) auctionInfo(a *auction.Auction) AuctionInfo {
	info := AuctionInfo{
		AssetContract: a.AssetContract.Hex(),
		AssetID:       a.AssetID,
		Seller:        a.Seller.Hex(),
		StartPrice:    a.StartPrice.String(),
		BiddingAsset:  a.BiddingAsset.Address().Hex(),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		HighestBid:    a.HighestBid.String(),
		HighestBidder: a.HighestBidder.Hex(),
		Settled:       a.Settled,
	}

	// Best-effort USD display; omitted when no feed is registered.
	if norm, err := s.feeds.NormalizedValue(a.BiddingAsset, a.Reserve()); err == nil {
		info.HighestBidUSD = oracle.USDValue(norm, 18).String()
	}
	return info
}

func auctionVars(r *http.Request) (common.Address, uint64, error) {
	vars := mux.Vars(r)
	contract, err := parseAddress(vars["contract"])
	if err != nil {
		return common.Address{}, 0, err
	}
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		return common.Address{}, 0, fmt.Errorf("invalid asset id: %w", err)
	}
	return contract, id, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", s)
	}
	return v, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}

// respondEngineError maps the engine's error taxonomy onto HTTP status
// codes: access failures 403, state conflicts 409, everything invalid 400,
// unknown records 404.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotAuthorized),
		errors.Is(err, auction.ErrNotOwner),
		errors.Is(err, auction.ErrNotApproved):
		status = http.StatusForbidden
	case errors.Is(err, auction.ErrAuctionExists),
		errors.Is(err, auction.ErrAlreadySettled),
		errors.Is(err, auction.ErrAuctionNotEnded),
		errors.Is(err, auction.ErrAuctionNotStarted),
		errors.Is(err, auction.ErrAuctionEnded),
		errors.Is(err, engine.ErrAlreadyInitialized):
		status = http.StatusConflict
	case errors.Is(err, auction.ErrInvalidStartPrice),
		errors.Is(err, auction.ErrInvalidStartTime),
		errors.Is(err, auction.ErrInvalidTimeRange),
		errors.Is(err, engine.ErrBidTooLow),
		errors.Is(err, engine.ErrWrongAsset),
		errors.Is(err, oracle.ErrTokenNotSupported):
		status = http.StatusBadRequest
	}
	respondError(w, status, err.Error(), "")
}
