package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"matchbook/bots"
	"matchbook/display"
	"matchbook/engine"
	"matchbook/refdata"
)

const submitTimeout = 5 * time.Second

type server struct {
	eng        *engine.Engine
	ref        *refdata.Cache
	tradeHubs  map[string]*hub[engine.Trade]
	upgrader   websocket.Upgrader
	authToken  string
	corsOrigin string
	depth      int
	log        *zap.Logger
}

type orderRequest struct {
	ClientOrderID   string  `json:"clientOrderId"`
	Instrument      string  `json:"instrument"`
	Side            string  `json:"side"`
	Type            string  `json:"type"`
	Price           float64 `json:"price"`
	Quantity        float64 `json:"quantity"`
	VisibleQuantity float64 `json:"visibleQuantity,omitempty"`
}

type orderResponse struct {
	Status string       `json:"status"`
	Order  *publicOrder `json:"order,omitempty"`
}

type publicOrder struct {
	ClientOrderID string  `json:"clientOrderId"`
	OrderID       int64   `json:"orderId"`
	Instrument    string  `json:"instrument"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	Filled        float64 `json:"filled"`
	Remaining     float64 `json:"remaining"`
	AvgFillPrice  float64 `json:"avgFillPrice"`
	Open          bool    `json:"open"`
	Trades        int     `json:"trades"`
}

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	cache := refdata.New(logger)
	if err := cache.Load(refdata.Config{
		DataDir:    cfg.DataDir,
		SymbolFile: cfg.SymbolFile,
		Separator:  cfg.Separator,
	}); err != nil {
		logger.Fatal("load reference data", zap.Error(err))
	}

	eng := engine.New(cache, logger)
	defer eng.Close()

	srv := newServer(eng, cache, cfg, logger)

	if cfg.BotsEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv.startBots(ctx, cfg.BotInterval)
	}

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := http.ListenAndServe(cfg.ListenAddr, srv.routes()); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}

func newServer(eng *engine.Engine, ref *refdata.Cache, cfg config, logger *zap.Logger) *server {
	s := &server{
		eng:        eng,
		ref:        ref,
		tradeHubs:  make(map[string]*hub[engine.Trade]),
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		authToken:  cfg.AuthToken,
		corsOrigin: cfg.CORSOrigin,
		depth:      cfg.SnapshotDepth,
		log:        logger.Named("server"),
	}
	for _, inst := range ref.All() {
		h := newHub[engine.Trade]()
		s.tradeHubs[inst.Name] = h
		go s.consumeTrades(eng.Book(inst), h)
	}
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/orders", s.withCORS(s.withAuth(http.HandlerFunc(s.handleOrders))))
	mux.Handle("/book", s.withCORS(s.withAuth(http.HandlerFunc(s.handleDepth))))
	mux.Handle("/ladder", s.withCORS(s.withAuth(http.HandlerFunc(s.handleLadder))))
	mux.Handle("/ws/trades", s.withCORS(s.withAuth(http.HandlerFunc(s.handleTradeStream))))
	return mux
}

func (s *server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleOrderLookup(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	order, err := s.buildOrder(req)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	result, err := s.eng.SubmitOrder(order)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	select {
	case res := <-result:
		if res.Err != nil {
			writeError(w, statusFor(res.Err), res.Err)
			return
		}
		writeJSON(w, http.StatusOK, orderResponse{Status: statusText(res.Order), Order: toPublicOrder(res.Order)})
	case <-time.After(submitTimeout):
		writeJSON(w, http.StatusAccepted, orderResponse{Status: "pending"})
	}
}

func (s *server) handleOrderLookup(w http.ResponseWriter, r *http.Request) {
	book, ok := s.bookFromQuery(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid order id: %w", err))
		return
	}
	order, err := book.GetOrder(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicOrder(order))
}

func (s *server) handleDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	book, ok := s.bookFromQuery(w, r)
	if !ok {
		return
	}
	depth := s.depth
	if v := r.URL.Query().Get("depth"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			depth = parsed
		}
	}
	writeJSON(w, http.StatusOK, display.BookDepth(book, depth))
}

func (s *server) handleLadder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	book, ok := s.bookFromQuery(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(display.Ladder(book)))
}

func (s *server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("instrument")
	h, ok := s.tradeHubs[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown instrument %q", name))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.Subscribe(32)
	defer h.Unsubscribe(sub)

	for trade := range sub.ch {
		msg := outboundMessage{Type: "trade", Data: toPublicTrade(trade)}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// startBots launches one bot swarm per instrument. Each swarm watches the
// fill stream through its instrument's hub, since the book channel itself
// belongs to consumeTrades.
func (s *server) startBots(ctx context.Context, interval time.Duration) {
	for _, inst := range s.ref.All() {
		h, ok := s.tradeHubs[inst.Name]
		if !ok {
			continue
		}
		sub := h.Subscribe(256)
		sup := bots.NewSupervisor(s.eng, inst, interval, sub.ch, s.log)
		go func() {
			defer h.Unsubscribe(sub)
			sup.Start(ctx)
		}()
	}
}

func (s *server) consumeTrades(book *engine.OrderBook, h *hub[engine.Trade]) {
	for trade := range book.Trades() {
		h.Broadcast(trade)
	}
	h.Close()
}

func (s *server) bookFromQuery(w http.ResponseWriter, r *http.Request) (*engine.OrderBook, bool) {
	name := r.URL.Query().Get("instrument")
	book, err := s.eng.BookByName(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return book, true
}

func (s *server) buildOrder(req orderRequest) (*engine.Order, error) {
	if req.ClientOrderID == "" || req.Instrument == "" {
		return nil, errors.New("clientOrderId and instrument are required")
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		return nil, err
	}
	ordType, err := engine.ParseOrderType(req.Type)
	if err != nil {
		return nil, err
	}
	inst, err := s.ref.Lookup(req.Instrument)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrUnknownInstrument, err)
	}
	return engine.NewOrder(engine.OrderParams{
		ClientOrderID:   req.ClientOrderID,
		Instrument:      inst,
		Side:            side,
		Type:            ordType,
		LimitPrice:      req.Price,
		Quantity:        req.Quantity,
		VisibleQuantity: req.VisibleQuantity,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrUnknownInstrument):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusBadRequest
	}
}

func statusText(order *engine.Order) string {
	switch {
	case order.LeavesQty() == 0:
		return "filled"
	case order.CumQty() > 0:
		return "partially_filled"
	default:
		return "resting"
	}
}

func toPublicOrder(order *engine.Order) *publicOrder {
	if order == nil {
		return nil
	}
	return &publicOrder{
		ClientOrderID: order.ClientOrderID(),
		OrderID:       order.OrderID(),
		Instrument:    order.Instrument().Name,
		Side:          order.Side().String(),
		Type:          order.Type().String(),
		Price:         order.LimitPrice(),
		Quantity:      order.OrderedQty(),
		Filled:        order.CumQty(),
		Remaining:     order.LeavesQty(),
		AvgFillPrice:  order.AvgFillPrice(),
		Open:          order.IsOpen(),
		Trades:        order.TradeCount(),
	}
}

func toPublicTrade(trade engine.Trade) map[string]interface{} {
	return map[string]interface{}{
		"tradeId":      trade.TradeID,
		"orderId":      trade.OrderID,
		"instrument":   trade.Instrument.Name,
		"side":         trade.Side.String(),
		"price":        trade.Price,
		"quantity":     trade.Quantity,
		"counterparty": trade.CounterpartyClientID,
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
