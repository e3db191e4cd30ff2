package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"entitlement-service/internal/domain"
	"entitlement-service/internal/domain/model"
	"entitlement-service/internal/domain/ports/repository"
	"entitlement-service/internal/infra/i18n"
	"entitlement-service/internal/infra/logging"
	"entitlement-service/internal/infra/metrics"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, catalog *i18n.Catalog, status int, key string) {
	tr := catalog.For(r.Header.Get("Accept-Language"))
	writeJSON(w, status, errorResponse{Error: key, Message: tr.T(key)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps a rejection reason to its HTTP status.
func statusFor(reason model.Reason) int {
	switch reason {
	case model.ReasonValid:
		return http.StatusOK
	case model.ReasonInvalidFormat:
		return http.StatusBadRequest
	case model.ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) validationBody(r *http.Request, res model.ValidationResult) redeemResponse {
	tr := s.d.Catalog.For(r.Header.Get("Accept-Language"))
	reason := res.PublicReason()
	body := redeemResponse{
		Success: res.Valid(),
		Reason:  reason,
		Benefit: toBenefitDTO(res.Benefit),
	}
	if reason == model.ReasonRateLimited {
		body.RetryAfterSeconds = retrySeconds(res.RetryAfter)
		body.Message = tr.T(string(reason), body.RetryAfterSeconds)
	} else {
		body.Message = tr.T(string(reason))
	}
	return body
}

// handleRedeem: POST /api/v1/redeem {code}. The account is the token subject.
func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.d.Catalog, http.StatusBadRequest, "bad_request")
		return
	}
	accountID := ClaimsFrom(r.Context()).Subject

	out, err := s.d.Redeem.Redeem(r.Context(), req.Code, accountID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBenefitPending):
		// committed; the grant is retried out of band
		body := s.validationBody(r, out.Result)
		body.Pending = true
		body.RedemptionID = out.Record.ID
		body.Message = s.d.Catalog.For(r.Header.Get("Accept-Language")).T("benefit_pending")
		writeJSON(w, http.StatusAccepted, body)
		return
	case errors.Is(err, domain.ErrCommitContention):
		w.Header().Set("Retry-After", "1")
		writeError(w, r, s.d.Catalog, http.StatusServiceUnavailable, "busy")
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, r, s.d.Catalog, http.StatusBadRequest, "bad_request")
		return
	default:
		l := logging.With(r.Context(), s.d.Logger)
		l.Error().Err(err).Msg("redeem failed")
		writeError(w, r, s.d.Catalog, http.StatusInternalServerError, "internal_error")
		return
	}

	body := s.validationBody(r, out.Result)
	if out.Record != nil {
		body.RedemptionID = out.Record.ID
	}
	if body.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}
	writeJSON(w, statusFor(out.Result.Reason), body)
}

// handleCheck always answers 200; the verdict is in the body.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, s.d.Catalog, http.StatusBadRequest, "bad_request")
		return
	}
	res, err := s.d.Redeem.Check(r.Context(), req.Code, ClaimsFrom(r.Context()).Subject)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeError(w, r, s.d.Catalog, http.StatusBadRequest, "bad_request")
			return
		}
		l := logging.With(r.Context(), s.d.Logger)
		l.Error().Err(err).Msg("check failed")
		writeError(w, r, s.d.Catalog, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, s.validationBody(r, res))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := ClaimsFrom(ctx).Subject
	resp := meResponse{AccountID: accountID, Roles: []string{}, Subscriptions: []subscriptionDTO{}}

	acc, err := s.d.Accounts.FindByID(ctx, repository.NoTX, accountID)
	switch {
	case err == nil:
		resp.Roles = append(resp.Roles, acc.Roles...)
	case errors.Is(err, domain.ErrNotFound):
		// never redeemed anything
	default:
		l := logging.With(ctx, s.d.Logger)
		l.Error().Err(err).Msg("load account failed")
		writeError(w, r, s.d.Catalog, http.StatusInternalServerError, "internal_error")
		return
	}

	subs, err := s.d.Accounts.ListSubscriptions(ctx, repository.NoTX, accountID)
	if err != nil {
		l := logging.With(ctx, s.d.Logger)
		l.Error().Err(err).Msg("list subscriptions failed")
		writeError(w, r, s.d.Catalog, http.StatusInternalServerError, "internal_error")
		return
	}
	now := s.d.Clock.Now()
	for _, g := range subs {
		resp.Subscriptions = append(resp.Subscriptions, subscriptionDTO{
			PlanID:     g.PlanID,
			SourceCode: g.SourceCode,
			Permanent:  g.Permanent,
			StartAt:    g.StartAt,
			ExpiresAt:  g.ExpiresAt,
			Active:     g.ActiveAt(now),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ===== admin =====

func (s *Server) adminError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncAdminAction(action, "not_found")
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownBenefit):
		metrics.IncAdminAction(action, "invalid")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: err.Error()})
	default:
		metrics.IncAdminAction(action, "error")
		l := logging.With(r.Context(), s.d.Logger)
		l.Error().Err(err).Str("action", action).Msg("admin action failed")
		writeError(w, r, s.d.Catalog, http.StatusInternalServerError, "internal_error")
	}
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := decode(w, r, &req); err != nil {
		metrics.IncAdminAction("issue", "invalid")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: err.Error()})
		return
	}
	codes, err := s.d.Admin.Issue(r.Context(), req.toModel(ClaimsFrom(r.Context()).Subject))
	if err != nil && !errors.Is(err, domain.ErrIssueIncomplete) {
		s.adminError(w, r, "issue", err)
		return
	}

	resp := struct {
		Codes      []codeDTO `json:"codes"`
		Requested  int       `json:"requested"`
		Incomplete bool      `json:"incomplete,omitempty"`
		Error      string    `json:"error,omitempty"`
	}{
		Codes:     toCodeDTOs(codes, s.d.Clock.Now()),
		Requested: req.Count,
	}
	status := http.StatusCreated
	if err != nil {
		resp.Incomplete = true
		resp.Error = err.Error()
		metrics.IncAdminAction("issue", "partial")
		if len(codes) == 0 {
			status = http.StatusInternalServerError
		}
	} else {
		metrics.IncAdminAction("issue", "ok")
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	codes, err := s.d.Admin.ListActive(r.Context())
	if err != nil {
		s.adminError(w, r, "list", err)
		return
	}
	metrics.IncAdminAction("list", "ok")
	writeJSON(w, http.StatusOK, map[string]any{"items": toCodeDTOs(codes, s.d.Clock.Now())})
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	c, ledger, err := s.d.Admin.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.adminError(w, r, "get", err)
		return
	}
	recs := make([]redemptionDTO, 0, len(ledger))
	for _, rec := range ledger {
		recs = append(recs, redemptionDTO{
			ID:         rec.ID,
			AccountID:  rec.AccountID,
			Seq:        rec.Seq,
			RedeemedAt: rec.RedeemedAt,
			Benefit:    toBenefitDTO(&rec.BenefitApplied),
		})
	}
	metrics.IncAdminAction("get", "ok")
	writeJSON(w, http.StatusOK, struct {
		Code        codeDTO         `json:"code"`
		Redemptions []redemptionDTO `json:"redemptions"`
	}{toCodeDTO(c, s.d.Clock.Now()), recs})
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	action := "deactivate"
	if active {
		action = "reactivate"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		var err error
		if active {
			err = s.d.Admin.Reactivate(r.Context(), code)
		} else {
			err = s.d.Admin.Deactivate(r.Context(), code)
		}
		if err != nil {
			s.adminError(w, r, action, err)
			return
		}
		metrics.IncAdminAction(action, "ok")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleReapply(w http.ResponseWriter, r *http.Request) {
	n, err := s.d.Admin.ReapplyBenefits(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.adminError(w, r, "reapply", err)
		return
	}
	metrics.IncAdminAction("reapply", "ok")
	writeJSON(w, http.StatusOK, map[string]int{"reapplied": n})
}
