package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/screencap/internal/api/models"
	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/geometry"
)

// registerDeviceRoutes registers the read-only desktop and catalog queries
// a picker needs before creating a session.
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-audio-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices/audio",
		Summary:     "List Audio Devices",
		Description: "List audio capture sources classified as speaker loopback or microphone",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.AudioDevicesResponse, error) {
		enum := s.options.Audio
		if enum == nil {
			return nil, huma.Error503ServiceUnavailable("audio enumeration is not configured")
		}
		devices, err := enum.Devices(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to enumerate audio devices", err)
		}
		return &models.AudioDevicesResponse{
			Body: models.AudioDevicesData{
				Devices: devices,
				Count:   len(devices),
				Backend: string(enum.Backend()),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-monitors",
		Method:      http.MethodGet,
		Path:        "/api/monitors",
		Summary:     "List Monitors",
		Description: "List connected monitors and, with more than one, their combined rectangle",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.MonitorsResponse, error) {
		if s.options.Monitors == nil {
			return nil, huma.Error503ServiceUnavailable("monitor discovery is not configured")
		}
		monitors, err := s.options.Monitors.Monitors(ctx)
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to query monitors", err)
		}
		data := models.MonitorsData{Monitors: monitors}
		if rect, ok, err := geometry.Combined(monitors); err == nil && ok {
			data.Combined = &rect
		}
		return &models.MonitorsResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-codecs",
		Method:      http.MethodGet,
		Path:        "/api/codecs",
		Summary:     "List Codecs",
		Description: "List the video codec catalog; advanced entries need allow_advanced",
		Tags:        []string{"sessions"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CodecsResponse, error) {
		return &models.CodecsResponse{
			Body: models.CodecsData{Codecs: capture.Codecs},
		}, nil
	})
}
