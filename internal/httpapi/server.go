package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"csms/internal/command"
	"csms/internal/config"
	"csms/internal/repo"
	"csms/internal/security"
	"csms/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Server is the HTTP surface: the gateway posts decoded charge-point actions
// to it, operators post commands, and read routes expose the durable state.
type Server struct {
	Cfg       config.Config
	Points    *repo.ChargePointsRepo
	Sessions  *repo.SessionsRepo
	States    *repo.StatusesRepo
	Messages  *repo.MessagesRepo
	Station   *services.Station
	Auth      *services.Authorization
	Telemetry *services.Telemetry
	Ledger    *services.Ledger
	Commands  map[string]command.HandlerFunc
	Log       *logrus.Logger
}

func NewServer(cfg config.Config, points *repo.ChargePointsRepo, sessions *repo.SessionsRepo,
	states *repo.StatusesRepo, messages *repo.MessagesRepo,
	station *services.Station, auth *services.Authorization, telemetry *services.Telemetry,
	ledger *services.Ledger, commands map[string]command.HandlerFunc, log *logrus.Logger) *Server {
	return &Server{
		Cfg:       cfg,
		Points:    points,
		Sessions:  sessions,
		States:    states,
		Messages:  messages,
		Station:   station,
		Auth:      auth,
		Telemetry: telemetry,
		Ledger:    ledger,
		Commands:  commands,
		Log:       log,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/v1/gateway", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return RequireBearer(s.Cfg.GatewayAPIKey, next) })
		r.Post("/chargepoints/{chargePointId}/auth", s.AuthChargePoint)
		r.Post("/chargepoints/{chargePointId}/messages/{action}", s.HandleMessage)
	})

	r.Post("/v1/commands", s.DispatchCommand)

	r.Get("/v1/chargepoints", s.ListChargePoints)
	r.Get("/v1/chargepoints/{chargePointId}", s.GetChargePoint)
	r.Get("/v1/chargepoints/{chargePointId}/connectors", s.ListConnectors)
	r.Get("/v1/chargepoints/{chargePointId}/sessions", s.ListSessions)
	r.Get("/v1/transactions/{transactionId}", s.GetTransaction)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

type authReq struct {
	PresentedSecret string `json:"presentedSecret"`
}

type authResp struct {
	Allowed bool `json:"allowed"`
}

// AuthChargePoint answers the gateway's connect question: may this identity,
// presenting this secret, attach at all.
func (s *Server) AuthChargePoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")

	var req authReq
	_ = json.NewDecoder(r.Body).Decode(&req)

	cp, err := s.Points.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if cp == nil || cp.SecretHash == "" ||
		!security.ConstantTimeEqualHex(cp.SecretHash, security.HashSecret(req.PresentedSecret)) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, authResp{Allowed: false})
		return
	}

	_ = s.Points.TouchLastSeen(r.Context(), id, time.Now().UTC())
	writeJSON(w, authResp{Allowed: true})
}

// DispatchCommand runs one operator command and returns its decision.
func (s *Server) DispatchCommand(w http.ResponseWriter, r *http.Request) {
	var cmd command.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if cmd.Action == "" || cmd.ChargePointID == "" {
		http.Error(w, "missing action/chargePointId", http.StatusBadRequest)
		return
	}
	fn, ok := s.Commands[cmd.Action]
	if !ok {
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	payload := []byte(cmd.Payload)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	resp := fn(r.Context(), cmd.ChargePointID, payload)
	if resp.Err != nil {
		w.WriteHeader(http.StatusBadRequest)
	}
	writeJSON(w, resp)
}

func (s *Server) ListChargePoints(w http.ResponseWriter, r *http.Request) {
	items, err := s.Points.List(r.Context(), queryLimit(r))
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, items)
}

func (s *Server) GetChargePoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.Points.Get(r.Context(), chi.URLParam(r, "chargePointId"))
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if cp == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"chargePointId": cp.ID,
		"vendor":        cp.Vendor,
		"model":         cp.Model,
		"firmware":      cp.FirmwareVersion,
		"isOnline":      cp.IsOnline,
		"lastSeenAt":    cp.LastSeenAt,
		"status":        cp.Status,
		"bootStatus":    cp.BootStatus,
		"createdAt":     cp.CreatedAt,
		"updatedAt":     cp.UpdatedAt,
	})
}

func (s *Server) ListConnectors(w http.ResponseWriter, r *http.Request) {
	items, err := s.States.ListStates(r.Context(), chi.URLParam(r, "chargePointId"))
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, items)
}

func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	items, err := s.Sessions.ListByChargePoint(r.Context(), chi.URLParam(r, "chargePointId"), queryLimit(r))
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, items)
}

func (s *Server) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := strconv.Atoi(chi.URLParam(r, "transactionId"))
	if err != nil {
		http.Error(w, "transactionId must be an integer", http.StatusBadRequest)
		return
	}
	sess, err := s.Sessions.FindByTransaction(r.Context(), txID)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if sess == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, sess)
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 50
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
