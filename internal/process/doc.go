// Package process provides subprocess lifecycle management.
//
// Process wraps os/exec for a single supervised child:
//   - Graceful shutdown with SIGINT and configurable timeout
//   - Force kill with SIGKILL if graceful shutdown times out
//   - Suspend and resume of the whole process group
//   - Output streaming with pluggable log parsing
//
// Example usage:
//
//	p := process.New("session", []string{"gst-launch-1.0", "-e", "videotestsrc", "!", "fakesink"}, logger)
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	defer p.Stop()
//	<-p.Done()
package process
