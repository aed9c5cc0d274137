// Package host exposes the engine to external surfaces through a small
// action protocol: a JSON request names an action, the response carries
// the result. The same dispatcher backs the HTTP API and any embedded
// surface.
package host

import (
	"context"
	"errors"
	"fmt"

	"meetscribe/bus"
	"meetscribe/session"
	"meetscribe/store"
)

// Actions understood by Dispatch.
const (
	ActionStartRecording     = "startRecording"
	ActionStopRecording      = "stopRecording"
	ActionGetTranscript      = "getTranscript"
	ActionDeleteTranscript   = "deleteTranscript"
	ActionListTranscripts    = "listTranscripts"
	ActionSearchTranscripts  = "searchTranscripts"
	ActionExportTranscripts  = "exportTranscripts"
	ActionOpenTranscriptView = "openTranscriptView"
	ActionToggleOverlay      = "toggleOverlay"
)

type Request struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Query  string `json:"query,omitempty"`
}

type Response struct {
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
	Transcript  *store.Transcript  `json:"transcript,omitempty"`
	Transcripts []store.Transcript `json:"transcripts,omitempty"`
	Export      *store.Export      `json:"export,omitempty"`
}

// Service dispatches surface requests against the engine. OpenView, when
// set, is called with the transcript id for openTranscriptView.
type Service struct {
	Store    *store.Store
	Recorder *session.Recorder
	Bus      bus.Bus
	OpenView func(id string)
}

func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	switch req.Action {
	case ActionStartRecording:
		if err := s.Recorder.Start(ctx); err != nil {
			return fail(err)
		}
		return Response{Success: true}

	case ActionStopRecording:
		saved, err := s.Recorder.Stop()
		if err != nil {
			return fail(err)
		}
		return Response{Success: true, Transcript: saved}

	case ActionGetTranscript:
		t, err := s.Store.Get(req.ID)
		if err != nil {
			return fail(err)
		}
		return Response{Success: true, Transcript: t}

	case ActionDeleteTranscript:
		if err := s.Store.Delete(req.ID); err != nil {
			return fail(err)
		}
		return Response{Success: true}

	case ActionListTranscripts:
		list, err := s.Store.List()
		if err != nil {
			return fail(err)
		}
		return Response{Success: true, Transcripts: list}

	case ActionSearchTranscripts:
		hits, err := s.Store.Search(req.Query)
		if err != nil {
			return fail(err)
		}
		return Response{Success: true, Transcripts: hits}

	case ActionExportTranscripts:
		exp, err := s.Store.ExportAll()
		if err != nil {
			return fail(err)
		}
		return Response{Success: true, Export: exp}

	case ActionOpenTranscriptView:
		if _, err := s.Store.Get(req.ID); err != nil {
			return fail(err)
		}
		if s.OpenView != nil {
			s.OpenView(req.ID)
		}
		s.Bus.Publish(bus.TopicOpenTranscript)
		return Response{Success: true}

	case ActionToggleOverlay:
		s.Bus.Publish(bus.TopicToggleOverlay)
		return Response{Success: true}
	}
	return fail(fmt.Errorf("unknown action %q", req.Action))
}

// NotFound reports whether a response failed because the transcript is gone.
func (r Response) NotFound() bool {
	return !r.Success && r.Error == store.ErrNotFound.Error()
}

func fail(err error) Response {
	if errors.Is(err, store.ErrNotFound) {
		return Response{Error: store.ErrNotFound.Error()}
	}
	return Response{Error: err.Error()}
}
