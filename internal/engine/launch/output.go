package launch

import "strings"

// ParseLogLevel maps a gst-launch output line to a log level.
func ParseLogLevel(line string) (level, msg string) {
	switch {
	case strings.HasPrefix(line, "ERROR:"):
		return "error", strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
	case strings.HasPrefix(line, "WARNING:"):
		return "warning", strings.TrimSpace(strings.TrimPrefix(line, "WARNING:"))
	case strings.HasPrefix(line, "Setting pipeline to"),
		strings.HasPrefix(line, "Pipeline is"),
		strings.HasPrefix(line, "Redistribute latency"),
		strings.HasPrefix(line, "New clock"),
		strings.HasPrefix(line, "Execution ended"),
		strings.HasPrefix(line, "Got EOS"),
		strings.HasPrefix(line, "Freeing pipeline"),
		strings.HasPrefix(line, "Handling interrupt"),
		strings.HasPrefix(line, "Interrupt: "),
		strings.HasPrefix(line, "EOS on shutdown"),
		strings.HasPrefix(line, "Waiting for EOS"):
		return "debug", line
	}
	return "info", line
}

// parseError extracts the raising element and the reason from an error line
// such as
//
//	ERROR: from element /GstPipeline:pipeline0/GstXImageSrc:video_src: Could not open X display
//
// The element name is the stage ID.
func parseError(line string) (source, reason string, ok bool) {
	rest, found := strings.CutPrefix(line, "ERROR: ")
	if !found {
		return "", "", false
	}
	path, found := strings.CutPrefix(rest, "from element ")
	if !found {
		return "", strings.TrimSpace(rest), true
	}
	elem, reason, found := strings.Cut(path, ": ")
	if !found {
		return "", strings.TrimSpace(path), true
	}
	if i := strings.LastIndex(elem, ":"); i >= 0 {
		elem = elem[i+1:]
	}
	return elem, strings.TrimSpace(reason), true
}
