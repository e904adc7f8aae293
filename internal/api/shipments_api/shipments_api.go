package shipments_api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/BearBump/TrackLedger/internal/services/shipments"
	"github.com/BearBump/TrackLedger/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Service interface {
	Claim(ctx context.Context, in store.ClaimInput) (store.Result, error)
	Check(trackingNumber, userID string) store.CheckResult
	Lookup(trackingNumber string) (models.AdminRecord, bool)
	Ledger() []models.AdminRecord
	List(userID string) []models.UserShipment
	History(trackingNumber string) []models.HistoryEntry
	Register(ctx context.Context, trackingNumber string, status models.Status) (string, error)
	RecordStatusChange(ctx context.Context, trackingNumber string, status models.Status) error
	Delete(ctx context.Context, userID, trackingNumber string) (bool, error)
	Refresh(ctx context.Context, userID, trackingNumber string) (shipments.RefreshResult, error)
}

type ShipmentsAPI struct {
	svc Service
	log *zap.Logger
}

func New(svc Service, log *zap.Logger) *ShipmentsAPI {
	if log == nil {
		log = zap.NewNop()
	}
	return &ShipmentsAPI{svc: svc, log: log}
}

// Routes mounts the /api/v1 endpoints on r.
func (a *ShipmentsAPI) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/admin/trackings", a.register)
		r.Get("/admin/trackings", a.ledger)
		r.Get("/admin/trackings/{number}", a.lookup)
		r.Post("/admin/trackings/{number}/status", a.recordStatus)

		r.Post("/users/{userID}/shipments", a.claim)
		r.Get("/users/{userID}/shipments", a.list)
		r.Get("/users/{userID}/shipments/{number}", a.check)
		r.Delete("/users/{userID}/shipments/{number}", a.delete)
		r.Post("/users/{userID}/shipments/{number}/refresh", a.refresh)

		r.Get("/history/{number}", a.history)
	})
}

type registerRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Status         string `json:"status"`
}

type messageResponse struct {
	Message string              `json:"message"`
	Record  *models.AdminRecord `json:"record,omitempty"`
}

func (a *ShipmentsAPI) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}
	// в отличие от загрузки снапшота, неизвестный статус здесь не угадываем
	status, ok := models.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown status: "+req.Status)
		return
	}
	msg, err := a.svc.Register(r.Context(), req.TrackingNumber, status)
	if err != nil {
		a.fail(w, err)
		return
	}
	resp := messageResponse{Message: msg}
	if rec, ok := a.svc.Lookup(req.TrackingNumber); ok {
		resp.Record = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *ShipmentsAPI) lookup(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.svc.Lookup(chi.URLParam(r, "number"))
	if !ok {
		writeError(w, http.StatusNotFound, "tracking number is not registered")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type ledgerResponse struct {
	Records []models.AdminRecord `json:"records"`
}

func (a *ShipmentsAPI) ledger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ledgerResponse{Records: a.svc.Ledger()})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *ShipmentsAPI) recordStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !a.decode(w, r, &req) {
		return
	}
	// в отличие от загрузки снапшота, неизвестный статус здесь не угадываем
	status, ok := models.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown status: "+req.Status)
		return
	}
	tn := chi.URLParam(r, "number")
	if err := a.svc.RecordStatusChange(r.Context(), tn, status); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		TrackingNumber: models.CanonicalTrackingNumber(tn),
		History:        a.svc.History(tn),
	})
}

type claimRequest struct {
	TrackingNumber     string  `json:"trackingNumber"`
	Sender             string  `json:"sender"`
	Product            string  `json:"product"`
	Quantity           float64 `json:"quantity"`
	UserTrackingNumber *string `json:"userTrackingNumber"`
}

type claimResponse struct {
	Message  string               `json:"message"`
	Shipment *models.UserShipment `json:"shipment,omitempty"`
}

func (a *ShipmentsAPI) claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.svc.Claim(r.Context(), store.ClaimInput{
		TrackingNumber: req.TrackingNumber,
		Sender:         req.Sender,
		Product:        req.Product,
		Quantity:       req.Quantity,
		UserID:         chi.URLParam(r, "userID"),
		UserMark:       req.UserTrackingNumber,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	if !res.OK {
		writeError(w, http.StatusConflict, res.Message)
		return
	}
	writeJSON(w, http.StatusCreated, claimResponse{Message: res.Message, Shipment: res.Shipment})
}

type listResponse struct {
	Shipments []models.UserShipment `json:"shipments"`
}

func (a *ShipmentsAPI) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Shipments: a.svc.List(chi.URLParam(r, "userID"))})
}

type checkResponse struct {
	Outcome           string                `json:"outcome"`
	TrackingNumber    string                `json:"trackingNumber"`
	Message           string                `json:"message"`
	Shipment          *models.UserShipment  `json:"shipment,omitempty"`
	Narrative         string                `json:"narrative,omitempty"`
	History           []models.HistoryEntry `json:"history,omitempty"`
	EstimatedDelivery *time.Time            `json:"estimatedDelivery,omitempty"`
	Admin             *models.AdminRecord   `json:"admin,omitempty"`
	Report            string                `json:"report"`
}

func toCheckResponse(res store.CheckResult) checkResponse {
	return checkResponse{
		Outcome:           res.Outcome.String(),
		TrackingNumber:    res.TrackingNumber,
		Message:           res.Message,
		Shipment:          res.Shipment,
		Narrative:         res.Narrative,
		History:           res.History,
		EstimatedDelivery: res.EstimatedDelivery,
		Admin:             res.Admin,
		Report:            res.Report(),
	}
}

func (a *ShipmentsAPI) check(w http.ResponseWriter, r *http.Request) {
	res := a.svc.Check(chi.URLParam(r, "number"), chi.URLParam(r, "userID"))
	code := http.StatusOK
	if res.Outcome == store.Unknown {
		code = http.StatusNotFound
	}
	writeJSON(w, code, toCheckResponse(res))
}

func (a *ShipmentsAPI) delete(w http.ResponseWriter, r *http.Request) {
	removed, err := a.svc.Delete(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "number"))
	if err != nil {
		a.fail(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type refreshResponse struct {
	Waiting bool          `json:"waiting"`
	Note    string        `json:"note,omitempty"`
	Changed bool          `json:"changed"`
	Check   checkResponse `json:"check"`
}

func (a *ShipmentsAPI) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Refresh(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "number"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{
		Waiting: res.Waiting,
		Note:    res.Note,
		Changed: res.Changed,
		Check:   toCheckResponse(res.Check),
	})
}

type historyResponse struct {
	TrackingNumber string                `json:"trackingNumber"`
	History        []models.HistoryEntry `json:"history"`
}

func (a *ShipmentsAPI) history(w http.ResponseWriter, r *http.Request) {
	tn := chi.URLParam(r, "number")
	writeJSON(w, http.StatusOK, historyResponse{
		TrackingNumber: models.CanonicalTrackingNumber(tn),
		History:        a.svc.History(tn),
	})
}

func (a *ShipmentsAPI) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func (a *ShipmentsAPI) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shipments.ErrInvalidArgument), errors.Is(err, store.ErrEmptyTrackingNumber):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shipments.ErrNoRemote):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
