package api

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// responseRecorder captures the status code, and the body of non-2xx
// responses, so the access log can report what a failed request returned.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   []byte
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.status/100 != 2 {
		r.body = append(r.body, b...)
	}
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) outcome() string {
	if len(r.body) > 0 {
		return fmt.Sprintf("%d %s", r.status, string(r.body))
	}
	return fmt.Sprintf("%d", r.status)
}

// Log is the access log middleware. Server side errors are logged at error
// level with the response body attached.
func Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &responseRecorder{ResponseWriter: w}
		logrus.Debugf("Request %s %s started.", r.Method, r.URL.Path)
		next.ServeHTTP(recorder, r)
		if recorder.status/100 == 5 {
			logrus.Errorf("Request %s %s returned %s", r.Method, r.URL.Path, recorder.outcome())
		} else {
			logrus.Debugf("Request %s %s returned %s", r.Method, r.URL.Path, recorder.outcome())
		}
	})
}
