package app

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/standardsja/pms-sub000/internal/platform/errors"
	"github.com/standardsja/pms-sub000/internal/services/review/domain"
)

// handler exposes the review workflow over JSON HTTP.
type handler struct {
	service *domain.Service
}

// newMux routes the review API. Every route requires a bearer token.
func newMux(service *domain.Service, secret []byte) http.Handler {
	h := &handler{service: service}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluations", h.openEvaluation)
	mux.HandleFunc("GET /v1/evaluations/{evaluationID}", h.getEvaluation)
	mux.HandleFunc("PUT /v1/evaluations/{evaluationID}/sections/{sectionID}", h.saveSection)
	mux.HandleFunc("POST /v1/evaluations/{evaluationID}/sections/{sectionID}/submit", h.submitSection)
	mux.HandleFunc("POST /v1/evaluations/{evaluationID}/sections/{sectionID}/verify", h.verifySection)
	mux.HandleFunc("POST /v1/evaluations/{evaluationID}/sections/{sectionID}/return", h.returnSection)
	mux.HandleFunc("POST /v1/evaluations/{evaluationID}/sections:verify-all", h.verifyAll)
	mux.HandleFunc("POST /v1/evaluations/{evaluationID}/sections:return-all", h.returnAll)
	mux.HandleFunc("POST /v1/evaluations/{evaluationID}/assignments", h.assignEvaluators)
	mux.HandleFunc("DELETE /v1/evaluations/{evaluationID}/assignments/{assignmentID}", h.removeAssignment)
	mux.HandleFunc("POST /v1/evaluations/{evaluationID}/assignments:complete", h.completeAssignment)

	return requireAuth(mux, secret)
}

type sectionView struct {
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	VerifierID  string     `json:"verifierId,omitempty"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type entryView struct {
	Comments            string    `json:"comments,omitempty"`
	RecommendedAction   string    `json:"recommendedAction,omitempty"`
	RecommendedSupplier string    `json:"recommendedSupplier,omitempty"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type contentView struct {
	Fields  map[string]string    `json:"fields,omitempty"`
	Entries map[string]entryView `json:"entries,omitempty"`
}

type assignmentView struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Sections    []string   `json:"sections"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type evaluationView struct {
	ID          string                 `json:"id"`
	Number      string                 `json:"number"`
	RFQNumber   string                 `json:"rfqNumber,omitempty"`
	RFQTitle    string                 `json:"rfqTitle,omitempty"`
	Status      string                 `json:"status"`
	CreatedBy   string                 `json:"createdBy"`
	Sections    map[string]sectionView `json:"sections"`
	Contents    map[string]contentView `json:"contents"`
	Assignments []assignmentView       `json:"assignments"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	Version     int64                  `json:"version"`
}

type bulkResultView struct {
	Evaluation evaluationView `json:"evaluation"`
	Applied    []string       `json:"applied"`
	Skipped    []string       `json:"skipped"`
}

func toEvaluationView(evaluation domain.Evaluation) evaluationView {
	view := evaluationView{
		ID:          evaluation.ID,
		Number:      evaluation.Number,
		RFQNumber:   evaluation.RFQNumber,
		RFQTitle:    evaluation.RFQTitle,
		Status:      evaluation.Status.String(),
		CreatedBy:   evaluation.CreatedBy,
		Sections:    make(map[string]sectionView, len(evaluation.Sections)),
		Contents:    make(map[string]contentView, len(evaluation.Contents)),
		Assignments: make([]assignmentView, 0, len(evaluation.Assignments)),
		CreatedAt:   evaluation.CreatedAt,
		UpdatedAt:   evaluation.UpdatedAt,
		Version:     evaluation.Version,
	}
	for section, record := range evaluation.Sections {
		view.Sections[string(section)] = sectionView{
			Status:      record.Status.String(),
			Notes:       record.Notes,
			VerifierID:  record.VerifierID,
			SubmittedAt: record.SubmittedAt,
			VerifiedAt:  record.VerifiedAt,
			UpdatedAt:   record.UpdatedAt,
		}
	}
	for section, content := range evaluation.Contents {
		if content.Empty() {
			continue
		}
		converted := contentView{Fields: content.Fields}
		if len(content.Entries) > 0 {
			converted.Entries = make(map[string]entryView, len(content.Entries))
			for userID, entry := range content.Entries {
				converted.Entries[userID] = entryView{
					Comments:            entry.Comments,
					RecommendedAction:   entry.RecommendedAction,
					RecommendedSupplier: entry.RecommendedSupplier,
					UpdatedAt:           entry.UpdatedAt,
				}
			}
		}
		view.Contents[string(section)] = converted
	}
	for _, assignment := range evaluation.Assignments {
		sections := make([]string, len(assignment.Sections))
		for i, section := range assignment.Sections {
			sections[i] = string(section)
		}
		view.Assignments = append(view.Assignments, assignmentView{
			ID:          assignment.ID,
			UserID:      assignment.UserID,
			Sections:    sections,
			Completed:   assignment.Completed,
			CreatedAt:   assignment.CreatedAt,
			CompletedAt: assignment.CompletedAt,
		})
	}
	return view
}

func sectionLabels(sections []domain.SectionID) []string {
	labels := make([]string, 0, len(sections))
	for _, section := range sections {
		labels = append(labels, string(section))
	}
	return labels
}

// writeJSON serializes the payload with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("review write response: %v", err)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps a domain failure onto an HTTP status and localized message.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperrors.HTTPStatus(err), errorBody{
		Code:    string(apperrors.GetCode(err)),
		Message: apperrors.UserMessage(err, apperrors.DefaultLocale),
	})
}

// decodeBody fills dst from the request body. An empty body leaves dst zero.
func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid request body", err)
	}
	return nil
}

func pathSection(r *http.Request) (domain.SectionID, error) {
	return domain.ParseSectionID(r.PathValue("sectionID"))
}

func (h *handler) openEvaluation(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Number    string `json:"number"`
		RFQNumber string `json:"rfqNumber"`
		RFQTitle  string `json:"rfqTitle"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	evaluation, err := h.service.OpenEvaluation(r.Context(), domain.OpenEvaluationInput{
		Actor:     actor,
		Number:    body.Number,
		RFQNumber: body.RFQNumber,
		RFQTitle:  body.RFQTitle,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvaluationView(evaluation))
}

func (h *handler) getEvaluation(w http.ResponseWriter, r *http.Request) {
	if _, err := actorFromContext(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	evaluation, err := h.service.GetEvaluation(r.Context(), r.PathValue("evaluationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}

func (h *handler) saveSection(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	section, err := pathSection(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Fields        map[string]string `json:"fields"`
		Entry         *entryView        `json:"entry"`
		StructureEdit bool              `json:"structureEdit"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	input := domain.SaveSectionInput{
		Actor:         actor,
		EvaluationID:  r.PathValue("evaluationID"),
		Section:       section,
		Fields:        body.Fields,
		StructureEdit: body.StructureEdit,
	}
	if body.Entry != nil {
		input.Entry = &domain.EvaluatorEntry{
			Comments:            body.Entry.Comments,
			RecommendedAction:   body.Entry.RecommendedAction,
			RecommendedSupplier: body.Entry.RecommendedSupplier,
		}
	}

	evaluation, err := h.service.SaveSection(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}

func (h *handler) submitSection(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	section, err := pathSection(r)
	if err != nil {
		writeError(w, err)
		return
	}

	evaluation, err := h.service.SubmitSection(r.Context(), domain.SubmitSectionInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
		Section:      section,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}

type reviewBody struct {
	Notes string `json:"notes"`
}

func (h *handler) verifySection(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	section, err := pathSection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body reviewBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	evaluation, err := h.service.VerifySection(r.Context(), domain.VerifySectionInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
		Section:      section,
		Notes:        body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}

func (h *handler) returnSection(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	section, err := pathSection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body reviewBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	evaluation, err := h.service.ReturnSection(r.Context(), domain.ReturnSectionInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
		Section:      section,
		Notes:        body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}

func (h *handler) verifyAll(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var body reviewBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	evaluation, result, err := h.service.VerifyAll(r.Context(), domain.VerifyAllInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
		Notes:        body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResultView{
		Evaluation: toEvaluationView(evaluation),
		Applied:    sectionLabels(result.Applied),
		Skipped:    sectionLabels(result.Skipped),
	})
}

func (h *handler) returnAll(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var body reviewBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	evaluation, result, err := h.service.ReturnAll(r.Context(), domain.ReturnAllInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
		Notes:        body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResultView{
		Evaluation: toEvaluationView(evaluation),
		Applied:    sectionLabels(result.Applied),
		Skipped:    sectionLabels(result.Skipped),
	})
}

func (h *handler) assignEvaluators(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		UserIDs  []string `json:"userIds"`
		Sections []string `json:"sections"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	sections := make([]domain.SectionID, 0, len(body.Sections))
	for _, value := range body.Sections {
		sections = append(sections, domain.SectionID(strings.TrimSpace(value)))
	}

	evaluation, err := h.service.AssignEvaluators(r.Context(), domain.AssignEvaluatorsInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
		UserIDs:      body.UserIDs,
		Sections:     sections,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}

func (h *handler) removeAssignment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	evaluation, err := h.service.RemoveAssignment(r.Context(), domain.RemoveAssignmentInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
		AssignmentID: r.PathValue("assignmentID"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}

func (h *handler) completeAssignment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromContext(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	evaluation, err := h.service.CompleteAssignment(r.Context(), domain.CompleteAssignmentInput{
		Actor:        actor,
		EvaluationID: r.PathValue("evaluationID"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(evaluation))
}
