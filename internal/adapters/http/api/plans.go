package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/raceday/internal/domain/model"
)

const (
	headerUserID = "X-User-ID"
	dateLayout   = "2006-01-02"
)

// PlansHandler serves plan creation, reads and resumption.
type PlansHandler struct {
	deps     Dependencies
	validate *validator.Validate
}

// NewPlansHandler creates a new plans handler.
func NewPlansHandler(deps Dependencies) *PlansHandler {
	return &PlansHandler{deps: deps, validate: validator.New()}
}

// createPlanRequest mirrors the OpenAPI schema for POST /plans. Field ranges
// are checked again on the generation input.
type createPlanRequest struct {
	Distance   string               `json:"distance" validate:"required"`
	Athlete    model.AthleteProfile `json:"athlete"`
	PriorRaces []model.PriorRace    `json:"prior_races,omitempty" validate:"max=20"`
	RaceDate   string               `json:"race_date" validate:"required,datetime=2006-01-02"`
	Location   *model.Location      `json:"location,omitempty"`
	Course     *model.CourseRef     `json:"course,omitempty"`
	RaceName   string               `json:"race_name,omitempty" validate:"max=120"`
}

func (req createPlanRequest) input() (model.GenerationInput, error) {
	distance, err := model.ParseDistanceCategory(req.Distance)
	if err != nil {
		return model.GenerationInput{}, err
	}
	date, err := time.Parse(dateLayout, req.RaceDate)
	if err != nil {
		return model.GenerationInput{}, err
	}
	return model.GenerationInput{
		Distance:   distance,
		Athlete:    req.Athlete,
		PriorRaces: req.PriorRaces,
		RaceDate:   date,
		Location:   req.Location,
		Course:     req.Course,
		RaceName:   strings.TrimSpace(req.RaceName),
	}, nil
}

type acceptedResponse struct {
	PlanID    string           `json:"plan_id"`
	Status    model.PlanStatus `json:"status"`
	StatusURL string           `json:"status_url"`
}

func accepted(p *model.RacePlan) acceptedResponse {
	return acceptedResponse{PlanID: p.ID, Status: p.Status, StatusURL: "/plans/" + p.ID + "/status"}
}

// HandleCreate handles POST /plans requests.
func (h *PlansHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_plan"
	userID, ok := requireUser(w, r, op)
	if !ok {
		return
	}

	var req createPlanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validate.StructCtx(r.Context(), req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	plan, err := h.deps.CreatePlan(r.Context(), userID, in)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	w.Header().Set("Location", "/plans/"+plan.ID)
	writeJSON(w, http.StatusAccepted, accepted(plan))
}

// requireUser reads the caller from X-User-ID and answers 400 when it is
// missing.
func requireUser(w http.ResponseWriter, r *http.Request, op string) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(headerUserID))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrMissingUser))
		return "", false
	}
	return userID, true
}

// notOwned answers 404 for plans of another user, the same as for plans
// that do not exist.
func notOwned(w http.ResponseWriter, op, owner, userID string) bool {
	if owner == userID {
		return false
	}
	writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
	return true
}

// HandleGet handles GET /plans/{id} requests.
func (h *PlansHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_plan"
	userID, ok := requireUser(w, r, op)
	if !ok {
		return
	}
	plan, err := h.deps.Plan(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	if notOwned(w, op, plan.UserID, userID) {
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// HandleStatus handles GET /plans/{id}/status requests.
func (h *PlansHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.plan_status"
	userID, ok := requireUser(w, r, op)
	if !ok {
		return
	}
	report, err := h.deps.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	if notOwned(w, op, report.UserID, userID) {
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleRetry handles POST /plans/{id}/retry requests. Only plans still
// generating are queued again.
func (h *PlansHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	const op = "api.retry_plan"
	userID, ok := requireUser(w, r, op)
	if !ok {
		return
	}
	id := r.PathValue("id")
	owned, err := h.deps.Plan(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	if notOwned(w, op, owned.UserID, userID) {
		return
	}
	plan, err := h.deps.Resume(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, accepted(plan))
}
