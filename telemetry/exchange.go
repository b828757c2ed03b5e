package telemetry

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// redactedHeaderKeys are the header names spec.md §6 requires to be
// masked before a record ever reaches a sink. Matching is
// case-insensitive, per HTTP header convention.
var redactedHeaderKeys = map[string]bool{
	"authorization":  true,
	"x-api-key":      true,
	"x-goog-api-key": true,
}

// RedactHeaders returns a copy of headers with every secret-bearing
// value masked to "***<last4>"; a value of 4 or fewer characters is
// shown in full after "***". A leading "Bearer " is dropped first.
// Non-secret headers pass through unchanged.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if redactedHeaderKeys[strings.ToLower(k)] {
			out[k] = maskValue(v)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskValue(v string) string {
	v = strings.TrimPrefix(v, "Bearer ")
	if len(v) <= 4 {
		return "***" + v
	}
	return "***" + v[len(v)-4:]
}

// ExchangeRecord is one outgoing HTTP exchange (or, for SDK-driven
// providers, one SDK call) worth of log detail.
type ExchangeRecord struct {
	Method          string // "SDK_CALL" for SDK-driven providers
	URL             string
	RequestHeaders  map[string]string
	RequestBody     string // JSON, or an SDK param object's string form
	ResponseStatus  int
	ResponseHeaders map[string]string
	ResponseBody    string
}

// ruleLine separates records in a file sink so the log can be
// asserted against with plain text search.
const ruleLine = "=================================================================="

// FormatExchange renders rec into the record shape spec.md §6 names:
// method/URL, redacted request headers, full request body, then
// response status/headers/body.
func FormatExchange(rec ExchangeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Method: %s\n", rec.Method)
	fmt.Fprintf(&b, "URL: %s\n", rec.URL)
	writeHeaders(&b, "Request-Header", RedactHeaders(rec.RequestHeaders))
	fmt.Fprintf(&b, "Request-Body: %s\n", rec.RequestBody)
	fmt.Fprintf(&b, "Response-Status: %d\n", rec.ResponseStatus)
	writeHeaders(&b, "Response-Header", rec.ResponseHeaders)
	fmt.Fprintf(&b, "Response-Body: %s\n", rec.ResponseBody)
	b.WriteString(ruleLine)
	b.WriteString("\n")
	return b.String()
}

func writeHeaders(b *strings.Builder, label string, headers map[string]string) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s: %s: %s\n", label, k, headers[k])
	}
}

// ExchangeSink writes formatted exchange records to a rotating file,
// one batch per file, named "llm-batch-<id>.log".
type ExchangeSink struct {
	w io.WriteCloser
}

// NewExchangeSink opens (creating if needed) the rotating log file for
// batchID under dir, rotating at maxSizeMB megabytes and keeping
// maxBackups old files.
func NewExchangeSink(dir, batchID string, maxSizeMB, maxBackups int) *ExchangeSink {
	return &ExchangeSink{
		w: &lumberjack.Logger{
			Filename:   dir + "/llm-batch-" + batchID + ".log",
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   false,
		},
	}
}

// Write appends a formatted exchange record to the sink.
func (s *ExchangeSink) Write(rec ExchangeRecord) error {
	_, err := io.WriteString(s.w, FormatExchange(rec))
	return err
}

// Close releases the underlying rotating file handle.
func (s *ExchangeSink) Close() error {
	return s.w.Close()
}
