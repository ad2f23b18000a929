package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/cookies"
	"github.com/sells-group/leadform/internal/enrich"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/stage"
	"github.com/sells-group/leadform/internal/tracking"
)

const defaultLookbackHours = 24

type enrichRequest struct {
	Email string `json:"email"`
}

type enrichResponse struct {
	Email        string                `json:"email"`
	Profile      *model.CompanyProfile `json:"profile"`
	Stage        model.Stage           `json:"stage"`
	MeetingStage model.Stage           `json:"meeting_stage"`
	FreeEmail    bool                  `json:"free_email,omitempty"`
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var req enrichRequest
	if !decode(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if s.deps.Resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment is not configured")
		return
	}

	profile, err := s.deps.Resolver.Resolve(r.Context(), email)
	switch {
	case errors.Is(err, enrich.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "email has no domain")
		return
	case err != nil:
		// A failed lookup is reported as "no profile".
		zap.L().Debug("api: enrichment returned no profile",
			zap.String("email_domain", model.EmailDomain(email)),
			zap.Error(err),
		)
		profile = nil
	}

	if !profile.Empty() {
		jar := cookies.FromRequest(r)
		if err := cookies.CompanyInfo.Set(jar, *profile); err != nil {
			zap.L().Warn("api: store company cookie", zap.Error(err))
		}
		jar.Flush(w)
	}

	writeJSON(w, http.StatusOK, enrichResponse{
		Email:        email,
		Profile:      profile,
		Stage:        stage.Portal.Profile(profile),
		MeetingStage: stage.Meeting.Profile(profile),
		FreeEmail:    enrich.IsFreeEmailDomain(model.EmailDomain(email)),
	})
}

type stageResponse struct {
	Size    string      `json:"size"`
	Funding float64     `json:"funding"`
	Profile string      `json:"profile"`
	Stage   model.Stage `json:"stage"`
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("profile")
	thresholds, ok := stage.ByName(name)
	if !ok {
		writeError(w, http.StatusBadRequest, "profile must be portal or meeting")
		return
	}
	if name == "" {
		name = "portal"
	}

	var funding float64
	if raw := q.Get("funding"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 {
			writeError(w, http.StatusBadRequest, "funding must be a non-negative number")
			return
		}
		funding = f
	}

	size := q.Get("size")
	writeJSON(w, http.StatusOK, stageResponse{
		Size:    size,
		Funding: funding,
		Profile: name,
		Stage:   thresholds.Classify(size, funding),
	})
}

func (s *Server) handleMeetingLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	jar := cookies.FromRequest(r)
	writeJSON(w, http.StatusOK, map[string]string{
		"path": path,
		"src":  s.deps.Meeting.FromJar(jar, path, q.Get("fallback")),
	})
}

type pageViewRequest struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer"`
	DeviceID string `json:"device_id"`
}

type pageViewResponse struct {
	Snapshot     tracking.Snapshot `json:"snapshot"`
	Fields       map[string]any    `json:"fields"`
	PortalParams string            `json:"portal_params"`
}

func (s *Server) handlePageView(w http.ResponseWriter, r *http.Request) {
	var req pageViewRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url must be a valid page URL")
		return
	}

	jar := cookies.FromRequest(r)
	snap := tracking.Record(jar, tracking.PageView{URL: u, Referrer: req.Referrer})
	jar.Flush(w)

	writeJSON(w, http.StatusOK, pageViewResponse{
		Snapshot:     snap,
		Fields:       snap.Fields(),
		PortalParams: snap.PortalParams(u.Path, req.DeviceID).Encode(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics are not configured")
		return
	}
	hours := defaultLookbackHours
	if raw := r.URL.Query().Get("lookback_hours"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h <= 0 {
			writeError(w, http.StatusBadRequest, "lookback_hours must be a positive integer")
			return
		}
		hours = h
	}

	snap, err := s.deps.Metrics.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("api: collect metrics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not collect metrics")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
