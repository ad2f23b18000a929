package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/leadform/internal/cookies"
	"github.com/sells-group/leadform/internal/model"
	"github.com/sells-group/leadform/internal/wizard"
)

type formSummary struct {
	ID           string         `json:"id"`
	Kind         model.FormKind `json:"kind"`
	Steps        int            `json:"steps"`
	RedirectPath string         `json:"redirect_path"`
}

type sessionResponse struct {
	State   wizard.State     `json:"state"`
	View    wizard.ViewState `json:"view"`
	Outcome *wizard.Outcome  `json:"outcome,omitempty"`
	Handled *bool            `json:"handled,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func (s *Server) handleListForms(w http.ResponseWriter, _ *http.Request) {
	out := make([]formSummary, 0, len(s.deps.Forms))
	for _, f := range s.deps.Forms {
		out = append(out, formSummary{ID: f.ID, Kind: f.Kind, Steps: len(f.Steps), RedirectPath: f.RedirectPath})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	f, ok := s.deps.Forms[chi.URLParam(r, "formID")]
	if !ok {
		writeError(w, http.StatusNotFound, "form not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	f, ok := s.deps.Forms[chi.URLParam(r, "formID")]
	if !ok {
		writeError(w, http.StatusNotFound, "form not found")
		return
	}
	if s.deps.Webhook == nil {
		writeError(w, http.StatusServiceUnavailable, "submissions are not configured")
		return
	}

	view := wizard.NewRecorder(wizard.SubmitLabel)
	sess, err := wizard.New(f, wizard.Deps{
		View:     view,
		Webhook:  s.deps.Webhook,
		Resolver: s.deps.Resolver,
		Tracker:  s.deps.Tracker,
		Pixel:    s.deps.Pixel,
		Phone:    s.deps.Phone,
		Log:      s.deps.Log,
		Policy:   s.deps.Policy,
	})
	if err != nil {
		zap.L().Error("api: create session", zap.String("form_id", f.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not start form")
		return
	}
	s.sessions.add(sess, view)

	writeJSON(w, http.StatusCreated, sessionResponse{State: sess.State(), View: view.State()})
}

// session resolves the {id} URL parameter, writing a 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	ls, ok := s.sessions.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return ls, ok
}

// respond writes the session state, mapping err to a status code. The
// body carries the state even on failure so the caller can render the
// inline errors the session produced.
func respond(w http.ResponseWriter, ls *liveSession, out *wizard.Outcome, err error) {
	resp := sessionResponse{State: ls.session.State(), View: ls.view.State(), Outcome: out}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, wizard.ErrStepInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrAlreadySubmitted),
		errors.Is(err, wizard.ErrSubmitInFlight),
		errors.Is(err, wizard.ErrNotFinalStep):
		return http.StatusConflict
	case errors.Is(err, wizard.ErrWebhookFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	respond(w, ls, nil, nil)
}

func (s *Server) handleSetValues(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	var values map[string]string
	if !decode(w, r, &values) {
		return
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := ls.session.SetValue(name, values[name]); err != nil {
			respond(w, ls, nil, err)
			return
		}
	}
	respond(w, ls, nil, nil)
}

type checkRequest struct {
	Group   string `json:"group"`
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	var req checkRequest
	if !decode(w, r, &req) {
		return
	}
	respond(w, ls, nil, ls.session.Check(req.Group, req.Value, req.Checked))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	respond(w, ls, nil, ls.session.Next(r.Context()))
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	respond(w, ls, nil, ls.session.Prev())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	jar := cookies.FromRequest(r)
	out, err := ls.session.Submit(r.Context(), jar)
	jar.Flush(w)
	respond(w, ls, out, err)
}

type keyRequest struct {
	Event wizard.KeyEvent `json:"event"`
	// PopupVisible defaults to true when omitted.
	PopupVisible *bool `json:"popup_visible,omitempty"`
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	var req keyRequest
	if !decode(w, r, &req) {
		return
	}
	visible := req.PopupVisible == nil || *req.PopupVisible

	jar := cookies.FromRequest(r)
	handled, out, err := ls.session.HandleKey(r.Context(), req.Event, visible, jar)
	jar.Flush(w)

	resp := sessionResponse{State: ls.session.State(), View: ls.view.State(), Outcome: out, Handled: &handled}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

type uploadRequest struct {
	Step      int  `json:"step"`
	Uploading bool `json:"uploading"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.session(w, r)
	if !ok {
		return
	}
	var req uploadRequest
	if !decode(w, r, &req) {
		return
	}
	if err := ls.session.SetUploading(req.Step, req.Uploading); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	respond(w, ls, nil, nil)
}
