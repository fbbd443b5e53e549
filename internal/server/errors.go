package server

import (
	"net/http"

	"ytaudio/internal/failure"
)

// kindToStatus maps terminal failure kinds to HTTP status codes.
var kindToStatus = map[failure.Kind]int{
	failure.Timeout:               http.StatusRequestTimeout,
	failure.BotDetection:          http.StatusTooManyRequests,
	failure.RateLimited:           http.StatusTooManyRequests,
	failure.ConversionToolMissing: http.StatusInternalServerError,
	failure.SSLError:              http.StatusInternalServerError,
	failure.Generic:               http.StatusInternalServerError,
}

func httpStatus(k failure.Kind) int {
	if s, ok := kindToStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}
