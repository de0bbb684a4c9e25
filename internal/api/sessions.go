package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/screencap/internal/api/models"
	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/lifecycle"
	"github.com/smazurov/screencap/internal/recorder"
	"github.com/smazurov/screencap/internal/resolver"
)

// registerSessionRoutes registers the session endpoints. There is at most
// one session, addressed as "current".
func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/api/sessions",
		Summary:     "Create Session",
		Description: "Resolve the selections and build a capture pipeline. The session starts in the building state; " +
			"call the start action to record.",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 409, 422, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.SessionRequest) (*models.SessionResponse, error) {
		sel, err := s.selections(input.Body)
		if err != nil {
			return nil, mapSessionError(err)
		}
		sess, err := s.recorder.Create(ctx, sel)
		if err != nil {
			return nil, mapSessionError(err)
		}
		return &models.SessionResponse{Body: sess.Info()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-current-session",
		Method:      http.MethodGet,
		Path:        "/api/sessions/current",
		Summary:     "Get Current Session",
		Description: "Get state, output file and pipeline description of the current session",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SessionResponse, error) {
		sess, err := s.recorder.Current()
		if err != nil {
			return nil, mapSessionError(err)
		}
		return &models.SessionResponse{Body: sess.Info()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-current-session",
		Method:      http.MethodPost,
		Path:        "/api/sessions/current/save",
		Summary:     "Save Session Output",
		Description: "Move the finished output to the next free autosave name",
		Tags:        []string{"sessions"},
		Errors:      []int{401, 404, 409, 500},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SaveResponse, error) {
		sess, err := s.recorder.Current()
		if err != nil {
			return nil, mapSessionError(err)
		}
		path, err := s.recorder.Save()
		if err != nil {
			return nil, mapSessionError(err)
		}
		return &models.SaveResponse{
			Body: models.SaveData{SessionID: sess.ID, Path: path},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "control-current-session",
		Method:      http.MethodPost,
		Path:        "/api/sessions/current/{action}",
		Summary:     "Control Session",
		Description: "Start, pause, resume or stop the current session. Stop returns once end-of-stream is " +
			"requested; watch the flush-done event for completion.",
		Tags:     []string{"sessions"},
		Errors:   []int{400, 401, 404, 409},
		Security: withAuth(),
	}, func(_ context.Context, input *models.SessionActionRequest) (*models.SessionResponse, error) {
		if err := s.recorder.Control(input.Action); err != nil {
			return nil, mapSessionError(err)
		}
		sess, err := s.recorder.Current()
		if err != nil {
			return nil, mapSessionError(err)
		}
		return &models.SessionResponse{Body: sess.Info()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "discard-current-session",
		Method:        http.MethodDelete,
		Path:          "/api/sessions/current",
		Summary:       "Discard Session",
		Description:   "Stop the current session if needed and delete its unsaved output",
		Tags:          []string{"sessions"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
		Security:      withAuth(),
	}, func(_ context.Context, _ *struct{}) (*struct{}, error) {
		if err := s.recorder.Discard(); err != nil {
			return nil, mapSessionError(err)
		}
		return &struct{}{}, nil
	})
}

// selections fills the request body's gaps from the recorder defaults.
func (s *Server) selections(body models.SessionRequestData) (resolver.Selections, error) {
	d := s.recorder.Defaults()
	sel := resolver.Selections{
		Target:        body.Target,
		Codec:         d.Codec,
		Framerate:     body.Framerate,
		Audio:         body.Audio,
		CaptureCursor: d.CaptureCursor,
		Borders:       body.Borders,
		Preview:       body.Preview,
		AllowAdvanced: body.AllowAdvanced,
		TestSource:    body.TestSource,
		Broadcast:     body.Broadcast,
	}
	if body.Mode != "" {
		mode, err := capture.ParseMode(body.Mode)
		if err != nil {
			return resolver.Selections{}, err
		}
		sel.Mode = mode
	}
	if body.Codec != "" {
		codec, err := capture.ParseCodec(body.Codec)
		if err != nil {
			return resolver.Selections{}, err
		}
		sel.Codec = codec
	}
	if body.CaptureCursor != nil {
		sel.CaptureCursor = *body.CaptureCursor
	}
	return sel, nil
}

// mapSessionError maps domain errors to HTTP errors
func mapSessionError(err error) error {
	switch {
	case errors.Is(err, recorder.ErrNoSession):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, recorder.ErrBusy),
		errors.Is(err, recorder.ErrNotFinished),
		errors.Is(err, recorder.ErrNothingToSave),
		errors.Is(err, lifecycle.ErrInvalidState),
		errors.Is(err, lifecycle.ErrUnsupported):
		return huma.Error409Conflict(err.Error())
	}

	switch capture.KindOf(err) {
	case capture.KindConfig:
		return huma.Error400BadRequest(err.Error(), err)
	case capture.KindBuild, capture.KindLink:
		return huma.Error422UnprocessableEntity(err.Error(), err)
	case capture.KindIO, capture.KindRuntime:
		return huma.Error500InternalServerError(err.Error(), err)
	}
	// Unknown control actions are rejected by path validation; anything
	// else that reaches here is unexpected.
	return huma.Error500InternalServerError("internal server error", err)
}
