package capture

import "fmt"

// CodecID identifies a video codec choice.
type CodecID int

// Codec identifiers, numbered as stored in user preferences.
const (
	CodecRaw CodecID = iota
	CodecVP8
	CodecH264
	CodecHuffYUV
	CodecJPEG
)

// Codec describes one entry of the codec catalog.
type Codec struct {
	ID          CodecID `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Extension   string  `json:"extension"`
	// Element is the GStreamer encoder factory, empty for raw video.
	Element string `json:"element,omitempty"`
	// Advanced codecs are opt-in.
	Advanced bool `json:"advanced"`
}

// Codecs is the catalog of supported video codecs.
var Codecs = []Codec{
	{ID: CodecRaw, Name: "raw", Description: "RAW (AVI)", Extension: ".avi", Advanced: true},
	{ID: CodecVP8, Name: "vp8", Description: "VP8 (WEBM)", Extension: ".webm", Element: "vp8enc"},
	{ID: CodecH264, Name: "h264", Description: "H264 (MP4)", Extension: ".mp4", Element: "x264enc"},
	{ID: CodecHuffYUV, Name: "huffyuv", Description: "HUFFYUV (AVI)", Extension: ".avi", Element: "avenc_huffyuv", Advanced: true},
	{ID: CodecJPEG, Name: "jpeg", Description: "Lossless JPEG (AVI)", Extension: ".avi", Element: "avenc_ljpeg", Advanced: true},
}

// LookupCodec returns the catalog entry for id.
func LookupCodec(id CodecID) (Codec, bool) {
	for _, c := range Codecs {
		if c.ID == id {
			return c, true
		}
	}
	return Codec{}, false
}

// ParseCodec accepts a catalog name.
func ParseCodec(name string) (CodecID, error) {
	for _, c := range Codecs {
		if c.Name == name {
			return c.ID, nil
		}
	}
	return 0, NewConfigError(fmt.Sprintf("unknown codec %q", name), nil)
}

func (id CodecID) String() string {
	if c, ok := LookupCodec(id); ok {
		return c.Name
	}
	return fmt.Sprintf("codec(%d)", int(id))
}

// Extension returns the file extension an artifact of this request gets
// when it is saved.
func (r Request) Extension() string {
	switch r.Mode {
	case ModeScreenshot:
		return ".png"
	case ModeBroadcast:
		return ""
	}
	if c, ok := LookupCodec(r.Codec); ok {
		return c.Extension
	}
	return ".movie"
}
