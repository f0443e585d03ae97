package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/ledger"
	"github.com/WatchDogStudios/CassandraNet/agentmarket/internal/skills"
)

// BuildCatalogue selects the profile's skills from builtin plus the
// composite report skill when a builder is supplied.
func BuildCatalogue(profile Profile, builtin skills.Catalogue, report *ReportBuilder) (skills.Catalogue, error) {
	all := make(skills.Catalogue, len(builtin)+1)
	for name, skill := range builtin {
		all[name] = skill
	}
	if report != nil {
		all.Add(report.Skill())
	}
	return all.Select(profile.Skills...)
}

// Service exposes an agent's skills over HTTP.
type Service struct {
	profile     Profile
	catalogue   skills.Catalogue
	pool        *WorkerPool
	history     *History
	logger      *zap.Logger
	collectorWg sync.WaitGroup
}

// NewService constructs a Service and starts the result collector loop.
func NewService(profile Profile, catalogue skills.Catalogue, pool *WorkerPool, history *History, logger *zap.Logger) *Service {
	svc := &Service{
		profile:   profile,
		catalogue: catalogue,
		pool:      pool,
		history:   history,
		logger:    logger,
	}
	svc.collectorWg.Add(1)
	go svc.collectResults()
	return svc
}

func (s *Service) collectResults() {
	defer s.collectorWg.Done()
	for result := range s.pool.Results() {
		s.history.Add(result)
	}
}

// Shutdown waits for the result collector to finish. Stop the pool first.
func (s *Service) Shutdown() {
	s.collectorWg.Wait()
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/skills", s.handleSkills).Methods(http.MethodGet)
	r.HandleFunc("/skills/{name}", s.handleRunSkill).Methods(http.MethodPost)
	r.HandleFunc("/jobs", s.handleEnqueue).Methods(http.MethodPost)
	r.HandleFunc("/jobs/recent", s.handleRecent).Methods(http.MethodGet)
	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type agentCard struct {
	Name     string `json:"name"`
	Wallet   string `json:"wallet"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Endpoint string `json:"endpoint"`
}

func (s *Service) handleSkills(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"agent": agentCard{
			Name:     s.profile.Name,
			Wallet:   s.profile.Wallet,
			Category: s.profile.Category,
			Price:    s.profile.Price,
			Endpoint: s.profile.Endpoint,
		},
		"skills": s.catalogue.List(),
	})
}

func (s *Service) handleRunSkill(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	name := mux.Vars(r)["name"]
	var req skills.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, errorsmod.Wrap(ledger.ErrInvalidInput, "invalid json payload"))
		return
	}
	start := time.Now()
	out, err := s.catalogue.Run(r.Context(), name, req)
	if err != nil {
		s.logger.Warn("skill failed", zap.String("skill", name), zap.Error(err))
		httpError(w, err)
		return
	}
	s.logger.Info("skill served", zap.String("skill", name), zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "skill": name, "result": out})
}

type enqueuePayload struct {
	JobID   string         `json:"jobId"`
	Skill   string         `json:"skill"`
	Request skills.Request `json:"request"`
}

func (s *Service) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var payload enqueuePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		httpError(w, errorsmod.Wrap(ledger.ErrInvalidInput, "invalid json payload"))
		return
	}
	if strings.TrimSpace(payload.JobID) == "" || strings.TrimSpace(payload.Skill) == "" {
		httpError(w, errorsmod.Wrap(ledger.ErrInvalidInput, "jobId and skill required"))
		return
	}
	if _, ok := s.catalogue[payload.Skill]; !ok {
		httpError(w, errorsmod.Wrapf(ledger.ErrNotFound, "skill %s", payload.Skill))
		return
	}
	task := Task{
		JobID:     payload.JobID,
		Skill:     payload.Skill,
		Request:   payload.Request,
		Submitted: time.Now().UTC(),
	}
	if err := s.pool.Enqueue(task); err != nil {
		if errors.Is(err, ErrQueueFull) {
			writeJSON(w, http.StatusServiceUnavailable, ledger.ErrorBody{Error: err.Error()})
			return
		}
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "jobId": task.JobID})
}

func (s *Service) handleRecent(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.history.Recent())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func httpError(w http.ResponseWriter, err error) {
	writeJSON(w, ledger.HTTPStatus(err), ledger.ErrorBody{Error: err.Error(), Code: ledger.ErrorCode(err)})
}
