package ledger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Routes carries optional endpoints mounted next to the API.
type Routes struct {
	// Feed serves the real-time event stream at /ws.
	Feed http.Handler
	// Metrics serves the in-memory metrics snapshot at /metrics.
	Metrics http.Handler
	// Activity serves the recent activity log at /activity.
	Activity http.Handler
}

// Handler returns an http.Handler exposing the marketplace API at the root
// and again under /api, wrapped with permissive CORS for browser dashboards.
func (s *Service) Handler(extra Routes) http.Handler {
	root := mux.NewRouter()
	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errorsmod.Wrapf(ErrNotFound, "route %s", r.URL.Path))
	})
	s.mount(root, extra)
	s.mount(root.PathPrefix("/api").Subrouter(), extra)
	return cors.AllowAll().Handler(root)
}

func (s *Service) mount(r *mux.Router, extra Routes) {
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id}", s.handleGetAgent).Methods(http.MethodGet)
	r.HandleFunc("/agents/{id}/status", s.handleSetStatus).Methods(http.MethodPost)
	r.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	r.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.handleRecentTransactions).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/create-job", s.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/job-complete", s.handleCompleteJob).Methods(http.MethodPost)
	r.HandleFunc("/job-fail", s.handleFailJob).Methods(http.MethodPost)
	r.HandleFunc("/transaction", s.handleRecordTransaction).Methods(http.MethodPost)

	if extra.Feed != nil {
		r.Handle("/ws", extra.Feed)
	}
	if extra.Metrics != nil {
		r.Handle("/metrics", extra.Metrics).Methods(http.MethodGet)
	}
	if extra.Activity != nil {
		r.Handle("/activity", extra.Activity).Methods(http.MethodGet)
	}
}

// flexString accepts a JSON string or a bare number; clients send prices both ways.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
		return nil
	}
}

type registerPayload struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Endpoint    string     `json:"endpoint"`
	Wallet      string     `json:"wallet"`
	Price       flexString `json:"price"`
	Category    string     `json:"category"`
}

type createJobPayload struct {
	ClientAgent   string     `json:"clientAgent"`
	ProviderAgent string     `json:"providerAgent"`
	Service       string     `json:"service"`
	Price         flexString `json:"price"`
}

type completeJobPayload struct {
	JobID  string          `json:"jobId"`
	Result json.RawMessage `json:"result"`
}

type failJobPayload struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason"`
}

type transactionPayload struct {
	ID        string     `json:"id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Amount    flexString `json:"amount"`
	Service   string     `json:"service"`
	Timestamp int64      `json:"timestamp"`
	TxHash    string     `json:"txHash"`
}

type statusPayload struct {
	Status string `json:"status"`
}

func (s *Service) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.Agents(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Service) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.Agent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Service) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var payload statusPayload
	if !decode(w, r, &payload) {
		return
	}
	agent, err := s.SetAgentStatus(r.Context(), mux.Vars(r)["id"], payload.Status)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agent": agent})
}

func (s *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.Jobs(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.Job(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Service) handleRecentTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.RecentTransactions(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if !decode(w, r, &payload) {
		return
	}
	agent, err := s.RegisterAgent(r.Context(), RegisterRequest{
		Name:        payload.Name,
		Description: payload.Description,
		Endpoint:    payload.Endpoint,
		Wallet:      payload.Wallet,
		Price:       string(payload.Price),
		Category:    payload.Category,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "agent": agent})
}

func (s *Service) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var payload createJobPayload
	if !decode(w, r, &payload) {
		return
	}
	job, err := s.CreateJob(r.Context(), CreateJobRequest{
		ClientAgent:   payload.ClientAgent,
		ProviderAgent: payload.ProviderAgent,
		Service:       payload.Service,
		Price:         string(payload.Price),
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": job})
}

func (s *Service) handleCompleteJob(w http.ResponseWriter, r *http.Request) {
	var payload completeJobPayload
	if !decode(w, r, &payload) {
		return
	}
	res, err := s.CompleteJob(r.Context(), payload.JobID, payload.Result)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": res.Job, "transaction": res.Transaction})
}

func (s *Service) handleFailJob(w http.ResponseWriter, r *http.Request) {
	var payload failJobPayload
	if !decode(w, r, &payload) {
		return
	}
	job, err := s.FailJob(r.Context(), payload.JobID, payload.Reason)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": job})
}

func (s *Service) handleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	var payload transactionPayload
	if !decode(w, r, &payload) {
		return
	}
	tx, err := s.RecordTransaction(r.Context(), TransactionRequest{
		ID:        payload.ID,
		From:      payload.From,
		To:        payload.To,
		Amount:    string(payload.Amount),
		Service:   payload.Service,
		Timestamp: payload.Timestamp,
		TxHash:    payload.TxHash,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "transaction": tx})
}

// ParseCategory parses a string into a Category value.
func ParseCategory(category string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case string(CategoryResearch):
		return CategoryResearch, nil
	case string(CategoryAnalysis), "analyzer":
		return CategoryAnalysis, nil
	case string(CategorySummarization), "summary":
		return CategorySummarization, nil
	default:
		return "", errorsmod.Wrapf(ErrInvalidInput, "unknown category %q", category)
	}
}

// ParseAgentStatus parses a string into an AgentStatus value.
func ParseAgentStatus(status string) (AgentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(AgentOnline):
		return AgentOnline, nil
	case string(AgentOffline):
		return AgentOffline, nil
	case string(AgentBusy):
		return AgentBusy, nil
	default:
		return "", errorsmod.Wrapf(ErrInvalidInput, "unknown status %q", status)
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    uint32 `json:"code,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errorsmod.Wrap(ErrInvalidInput, "invalid json payload"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorBody{Success: false, Error: err.Error(), Code: ErrorCode(err)})
}

func httpError(w http.ResponseWriter, err error) {
	writeError(w, HTTPStatus(err), err)
}
