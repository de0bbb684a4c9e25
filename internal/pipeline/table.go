package pipeline

import (
	"fmt"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/geometry"
)

// Env is the build environment fixed when the builder is created.
type Env struct {
	// Cores is the encoder thread budget.
	Cores int
}

// codecRow is one row of the file recording table.
type codecRow struct {
	encoder func(env Env) *Stage
	muxer   func() *Stage
	audio   func() *Stage
}

var codecTable = map[capture.CodecID]codecRow{
	capture.CodecRaw: {
		muxer: aviMux,
		audio: mp3Encoder,
	},
	capture.CodecVP8: {
		encoder: func(env Env) *Stage {
			return &Stage{ID: "video_enc", Kind: KindEncoder, Factory: "vp8enc", Props: Props{
				"cpu-used":         2,
				"end-usage":        "vbr",
				"target-bitrate":   800000000,
				"static-threshold": 1000,
				"token-partitions": 2,
				"max-quantizer":    30,
				"threads":          env.Cores,
			}}
		},
		muxer: func() *Stage {
			return &Stage{ID: "mux", Kind: KindMuxer, Factory: "webmmux"}
		},
		audio: func() *Stage {
			return &Stage{ID: "audio_enc", Kind: KindEncoder, Factory: "vorbisenc", Props: Props{"quality": 1}}
		},
	},
	capture.CodecH264: {
		encoder: func(env Env) *Stage {
			return &Stage{ID: "video_enc", Kind: KindEncoder, Factory: "x264enc", Props: Props{
				"speed-preset": "ultrafast",
				"pass":         "quant",
				"quantizer":    15,
				"threads":      min(env.Cores, 4),
			}}
		},
		muxer: func() *Stage {
			return &Stage{ID: "mux", Kind: KindMuxer, Factory: "mp4mux", Props: Props{
				"faststart":      true,
				"faststart-file": ArtifactScratch,
				"streamable":     true,
			}}
		},
		audio: mp3Encoder,
	},
	capture.CodecHuffYUV: {
		encoder: func(Env) *Stage {
			return &Stage{ID: "video_enc", Kind: KindEncoder, Factory: "avenc_huffyuv", Props: Props{"bitrate": 500000}}
		},
		muxer: aviMux,
		audio: mp3Encoder,
	},
	capture.CodecJPEG: {
		encoder: func(Env) *Stage {
			return &Stage{ID: "video_enc", Kind: KindEncoder, Factory: "avenc_ljpeg"}
		},
		muxer: aviMux,
		audio: mp3Encoder,
	},
}

func aviMux() *Stage {
	return &Stage{ID: "mux", Kind: KindMuxer, Factory: "avimux"}
}

func mp3Encoder() *Stage {
	return &Stage{ID: "audio_enc", Kind: KindEncoder, Factory: "lamemp3enc", Props: Props{"quality": 0}}
}

// recipe is the ordered set of stages for one request. Chains are linked
// in order; the assembler joins them at the tee, mixer and muxer.
type recipe struct {
	video     []*Stage
	preview   []*Stage
	audio     [][]*Stage
	audioTail []*Stage
	mux       *Stage
	tail      []*Stage
}

// lookupRecipe resolves the table row for the request's mode, codec and
// audio source count.
func lookupRecipe(req capture.Request, env Env) (recipe, error) {
	switch req.Mode {
	case capture.ModeScreenshot:
		return screenshotRecipe(req), nil
	case capture.ModeBroadcast:
		if req.Codec != capture.CodecH264 {
			return recipe{}, capture.NewBuildError(fmt.Sprintf("broadcast requires h264, got %s", req.Codec), nil)
		}
		return broadcastRecipe(req, env), nil
	case capture.ModeScreencast, capture.ModeWebcam:
		row, ok := codecTable[req.Codec]
		if !ok {
			return recipe{}, capture.NewBuildError(fmt.Sprintf("no pipeline for codec %s", req.Codec), nil)
		}
		return fileRecipe(req, env, row), nil
	default:
		return recipe{}, capture.NewBuildError(fmt.Sprintf("no pipeline for mode %q", req.Mode), nil)
	}
}

func fileRecipe(req capture.Request, env Env, row codecRow) recipe {
	r := recipe{video: captureHead(req)}
	if req.Mode == capture.ModeWebcam && req.Preview {
		r.video = append(r.video, &Stage{ID: "tee", Kind: KindTee, Factory: "tee"})
		r.preview = []*Stage{
			{ID: "preview_queue", Kind: KindFilter, Factory: "queue"},
			{ID: "preview_convert", Kind: KindColorConvert, Factory: "videoconvert"},
			{ID: "preview_sink", Kind: KindSink, Factory: "autovideosink", Props: Props{"sync": false}, Preview: true},
		}
	}
	r.video = append(r.video, rateChain(req)...)
	if row.encoder != nil {
		r.video = append(r.video, row.encoder(env))
	}
	r.video = append(r.video, &Stage{ID: "video_out_queue", Kind: KindFilter, Factory: "queue"})

	r.audio, r.audioTail = audioChains(req, row.audio, nil)
	r.mux = row.muxer()
	r.tail = []*Stage{
		{ID: "file_queue", Kind: KindFilter, Factory: "queue"},
		fileSink(),
	}
	return r
}

func broadcastRecipe(req capture.Request, env Env) recipe {
	fps := req.Framerate
	r := recipe{video: captureHead(req)}
	r.video = append(r.video, rateChain(req)...)
	r.video = append(r.video,
		&Stage{ID: "video_enc", Kind: KindEncoder, Factory: "x264enc", Props: Props{
			"bitrate":      req.Broadcast.Bitrate,
			"tune":         "zerolatency",
			"speed-preset": "veryfast",
			"key-int-max":  2 * fps,
			"threads":      min(env.Cores, 4),
		}},
		&Stage{ID: "video_out_queue", Kind: KindFilter, Factory: "queue"},
	)

	aac := func() *Stage {
		return &Stage{ID: "audio_enc", Kind: KindEncoder, Factory: "voaacenc", Props: Props{"bitrate": 128000}}
	}
	parser := &Stage{ID: "audio_parse", Kind: KindFilter, Factory: "aacparse"}
	r.audio, r.audioTail = audioChains(req, aac, parser)
	r.mux = &Stage{ID: "mux", Kind: KindMuxer, Factory: "flvmux", Props: Props{"streamable": true}}
	r.tail = []*Stage{
		{ID: "net_queue", Kind: KindFilter, Factory: "queue"},
		{ID: "sink", Kind: KindSink, Factory: "rtmpsink", Props: Props{"location": req.Broadcast.URL() + " live=1"}},
	}
	return r
}

func screenshotRecipe(req capture.Request) recipe {
	return recipe{
		video: []*Stage{
			videoSource(req),
			{ID: "video_convert", Kind: KindColorConvert, Factory: "videoconvert"},
			{ID: "video_enc", Kind: KindEncoder, Factory: "pngenc", Props: Props{"snapshot": true}},
		},
		tail: []*Stage{fileSink()},
	}
}

// captureHead is the grabber plus whatever must sit before the tee.
func captureHead(req capture.Request) []*Stage {
	head := []*Stage{videoSource(req)}
	if req.Target.Kind == capture.TargetWebcam && !req.TestSource {
		res := req.Target.Resolution
		head = append(head, &Stage{ID: "video_src_caps", Kind: KindFilter, Factory: "capsfilter", Props: Props{
			"caps": Caps(fmt.Sprintf("video/x-raw,width=%d,height=%d", res.Width, res.Height)),
		}})
		return head
	}
	head = append(head, &Stage{ID: "video_queue", Kind: KindFilter, Factory: "queue"})
	if crop := cropStage(req); crop != nil {
		head = append(head, crop)
	}
	return head
}

// rateChain limits the frame rate and converts to the encoder's format.
func rateChain(req capture.Request) []*Stage {
	var chain []*Stage
	if req.Target.Kind == capture.TargetWebcam && !req.TestSource {
		chain = append(chain, &Stage{ID: "video_queue", Kind: KindFilter, Factory: "queue"})
	}
	return append(chain,
		&Stage{ID: "video_rate", Kind: KindRateLimiter, Factory: "videorate"},
		&Stage{ID: "video_caps", Kind: KindFilter, Factory: "capsfilter", Props: Props{
			"caps": Caps(fmt.Sprintf("video/x-raw,framerate=%d/1", req.Framerate)),
		}},
		&Stage{ID: "video_convert", Kind: KindColorConvert, Factory: "videoconvert"},
	)
}

func videoSource(req capture.Request) *Stage {
	var s *Stage
	t := req.Target
	switch {
	case req.TestSource:
		s = &Stage{Factory: "videotestsrc", Props: Props{"pattern": "smpte", "is-live": true}}
	case t.Kind == capture.TargetWebcam:
		s = &Stage{Factory: "v4l2src", Props: Props{"device": t.Device}}
	case t.Kind == capture.TargetWindow && !t.CaptureFrame:
		s = &Stage{Factory: "ximagesrc", Props: Props{
			"xid":          int(t.Window),
			"use-damage":   false,
			"show-pointer": req.CaptureCursor,
		}}
	default:
		s = &Stage{Factory: "ximagesrc", Props: Props{
			"startx":       t.Rect.StartX,
			"starty":       t.Rect.StartY,
			"endx":         t.Rect.EndX,
			"endy":         t.Rect.EndY,
			"use-damage":   false,
			"show-pointer": req.CaptureCursor,
		}}
	}
	s.ID = "video_src"
	s.Kind = KindSource
	if req.Mode == capture.ModeScreenshot {
		s.Props["num-buffers"] = 1
	}
	return s
}

// cropStage trims odd window dimensions for h264, which needs even sizes.
// Rect targets are aligned by the resolver instead.
func cropStage(req capture.Request) *Stage {
	t := req.Target
	if req.Codec != capture.CodecH264 || req.Mode == capture.ModeScreenshot || req.TestSource {
		return nil
	}
	if t.Kind != capture.TargetWindow || t.CaptureFrame {
		return nil
	}
	left, bottom := geometry.CropAmounts(t.WindowSize)
	if left == 0 && bottom == 0 {
		return nil
	}
	return &Stage{ID: "video_crop", Kind: KindCrop, Factory: "videocrop", Props: Props{
		"left":   left,
		"bottom": bottom,
	}}
}

// audioChains builds one source chain per audio source and the shared
// tail that feeds the muxer. Two sources meet in a mixer.
func audioChains(req capture.Request, encoder func() *Stage, parser *Stage) ([][]*Stage, []*Stage) {
	if len(req.Audio) == 0 {
		return nil, nil
	}
	chains := make([][]*Stage, 0, len(req.Audio))
	for i, src := range req.Audio {
		factory := "pulsesrc"
		if src.Backend == "alsa" {
			factory = "alsasrc"
		}
		chains = append(chains, []*Stage{
			{ID: fmt.Sprintf("audio_src_%d", i), Kind: KindSource, Factory: factory, Props: Props{"device": src.Handle}},
			{ID: fmt.Sprintf("audio_queue_%d", i), Kind: KindFilter, Factory: "queue"},
			{ID: fmt.Sprintf("audio_caps_%d", i), Kind: KindFilter, Factory: "capsfilter", Props: Props{
				"caps": Caps(fmt.Sprintf("audio/x-raw,channels=%d", src.Channels)),
			}},
		})
	}

	var tail []*Stage
	if len(chains) > 1 {
		tail = append(tail, &Stage{ID: "audio_mixer", Kind: KindMixer, Factory: "audiomixer"})
	}
	tail = append(tail,
		&Stage{ID: "audio_convert", Kind: KindColorConvert, Factory: "audioconvert"},
		encoder(),
	)
	if parser != nil {
		tail = append(tail, parser)
	}
	tail = append(tail, &Stage{ID: "audio_out_queue", Kind: KindFilter, Factory: "queue"})
	return chains, tail
}

func fileSink() *Stage {
	return &Stage{ID: "sink", Kind: KindSink, Factory: "filesink", Props: Props{"location": ArtifactOutput}}
}
