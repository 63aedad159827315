package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rbaliyan/smsbox"
	"github.com/rbaliyan/smsbox/archive"
	"github.com/rbaliyan/smsbox/store"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	if !s.svc.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type folderStats struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
}

type statsResponse struct {
	Total   int64                  `json:"total"`
	Unread  int64                  `json:"unread"`
	Folders map[string]folderStats `json:"folders"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := statsResponse{
		Total:   stats.Total,
		Unread:  stats.Unread,
		Folders: make(map[string]folderStats, len(store.Folders)),
	}
	for _, f := range store.Folders {
		c := stats.Folders[f]
		resp.Folders[shortFolder(f)] = folderStats{Total: c.Total, Unread: c.Unread}
	}
	writeJSON(w, http.StatusOK, resp)
}

type listResponse struct {
	Messages []archive.Record `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	folder := q.Get("folder")
	if folder != "" && !strings.HasPrefix(folder, "__") {
		folder = "__" + folder
	}

	opts := store.ListOptions{SortBy: "date", SortOrder: store.SortDesc}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit: "+err.Error())
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset: "+err.Error())
		return
	}

	list, err := s.svc.Messages().List(r.Context(), folder, opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := listResponse{Messages: make([]archive.Record, 0, len(list.Messages)), HasMore: list.HasMore}
	for _, m := range list.Messages {
		resp.Messages = append(resp.Messages, archive.NewRecord(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Messages().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archive.NewRecord(msg))
}

type enqueueRequest struct {
	Address  string `json:"address" validate:"required"`
	Body     string `json:"body" validate:"required"`
	ThreadID string `json:"thread_id"`
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.svc.Enqueue(r.Context(), req.Address, req.Body, req.ThreadID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, archive.NewRecord(msg))
}

func (s *Server) resend(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Resend(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// eventRequest is the JSON envelope for POST /v1/events.
type eventRequest struct {
	Type      string    `json:"type" validate:"required,oneof=received send_result boot connectivity"`
	Parts     []pduJSON `json:"parts" validate:"required_if=Type received,dive"`
	Code      string    `json:"code" validate:"required_if=Type send_result"`
	TargetRef string    `json:"target_ref" validate:"required_if=Type send_result"`
	State     string    `json:"state" validate:"required_if=Type connectivity"`
	// Wait makes the request block until the event has been handled.
	Wait bool `json:"wait"`
}

type pduJSON struct {
	Address          string `json:"address" validate:"required"`
	Body             string `json:"body"`
	Protocol         int    `json:"protocol" validate:"gte=0,lte=255"`
	Class            string `json:"class" validate:"omitempty,oneof=unknown class0 class1 class2 class3"`
	ReplyPathPresent bool   `json:"reply_path_present"`
	ServiceCenter    string `json:"service_center"`
	PseudoSubject    string `json:"pseudo_subject"`
	Raw              []byte `json:"raw"`
}

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !s.decode(w, r, &req) {
		return
	}
	ev, err := req.event()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := smsbox.EventKind(ev)
	if req.Wait {
		err = s.svc.Handle(r.Context(), ev)
	} else {
		err = s.svc.Submit(r.Context(), ev)
	}
	if err != nil {
		s.metrics.events.WithLabelValues(kind, outcome(err)).Inc()
		s.fail(w, r, err)
		return
	}
	s.metrics.events.WithLabelValues(kind, "accepted").Inc()

	if req.Wait {
		writeJSON(w, http.StatusOK, map[string]string{"status": "handled"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func outcome(err error) string {
	switch {
	case errors.Is(err, smsbox.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, smsbox.ErrNotConnected):
		return "not_connected"
	default:
		return "failed"
	}
}

func (req eventRequest) event() (smsbox.Event, error) {
	switch req.Type {
	case "received":
		parts := make([]smsbox.PDU, len(req.Parts))
		for i, p := range req.Parts {
			class, ok := lookup(p.Class, smsbox.ClassUnknown, smsbox.Class3)
			if !ok {
				return nil, fmt.Errorf("unknown class %q", p.Class)
			}
			parts[i] = smsbox.PDU{
				OriginatingAddress: p.Address,
				DisplayBody:        p.Body,
				Protocol:           p.Protocol,
				Class:              class,
				ReplyPathPresent:   p.ReplyPathPresent,
				ServiceCenter:      p.ServiceCenter,
				PseudoSubject:      p.PseudoSubject,
				Raw:                p.Raw,
			}
		}
		return smsbox.MessageReceived{Parts: parts}, nil
	case "send_result":
		code, ok := lookup(req.Code, smsbox.ResultOK, smsbox.ResultNoService)
		if !ok {
			return nil, fmt.Errorf("unknown result code %q", req.Code)
		}
		return smsbox.SendResult{Code: code, TargetRef: req.TargetRef}, nil
	case "boot":
		return smsbox.BootCompleted{}, nil
	case "connectivity":
		state, ok := lookup(req.State, smsbox.StateInService, smsbox.StatePowerOff)
		if !ok {
			return nil, fmt.Errorf("unknown service state %q", req.State)
		}
		return smsbox.ConnectivityChanged{State: state}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", req.Type)
}

// lookup finds the enum value in [first, last] whose String() is name.
// An empty name means first.
func lookup[T interface {
	~int
	fmt.Stringer
}](name string, first, last T) (T, bool) {
	if name == "" {
		return first, true
	}
	for v := first; v <= last; v++ {
		if v.String() == name {
			return v, true
		}
	}
	return first, false
}

// decode reads and validates a JSON body of at most maxBodyBytes, writing a
// 413 or 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "body is invalid json")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			writeError(w, http.StatusBadRequest, "invalid fields: "+strings.Join(fields, ", "))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
