//go:build cgo

package native

/*
#cgo pkg-config: gstreamer-1.0 gstreamer-video-1.0
#include <stdlib.h>
#include <gst/gst.h>
#include <gst/video/videooverlay.h>

static gboolean screencap_set_arg(GObject *obj, const gchar *name, const gchar *value) {
	if (g_object_class_find_property(G_OBJECT_GET_CLASS(obj), name) == NULL)
		return FALSE;
	gst_util_set_object_arg(obj, name, value);
	return TRUE;
}

static gboolean screencap_set_window_handle(GstElement *elem, guintptr handle) {
	if (!GST_IS_VIDEO_OVERLAY(elem))
		return FALSE;
	gst_video_overlay_set_window_handle(GST_VIDEO_OVERLAY(elem), handle);
	return TRUE;
}
*/
import "C"

import (
	"unsafe"

	"github.com/tinyzimmer/go-gst/gst"
)

// setArg sets a property from its string form, the way gst-launch does.
// Enum nicks, caps strings and numbers are parsed by the property's type.
func setArg(elem *gst.Element, name, value string) bool {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	cvalue := C.CString(value)
	defer C.free(unsafe.Pointer(cvalue))
	return C.screencap_set_arg((*C.GObject)(elem.Unsafe()), cname, cvalue) == C.TRUE
}

func setWindowHandle(elem *gst.Element, handle uintptr) bool {
	return C.screencap_set_window_handle((*C.GstElement)(elem.Unsafe()), C.guintptr(handle)) == C.TRUE
}
