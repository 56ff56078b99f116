package utils

import (
	"net/http"
	"net/http/httputil"
	"regexp"

	"github.com/rs/zerolog/log"
)

var authHeader = regexp.MustCompile(`(?m)^(Authorization: Bearer )\S+`)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return fn(r)
}

func DebugRoundTripper() http.RoundTripper {
	return DebugRoundTripperWithUnderlying(http.DefaultTransport)
}

// DebugRoundTripperWithUnderlying logs every request and response at debug
// level. Bearer tokens are masked.
func DebugRoundTripperWithUnderlying(u http.RoundTripper) http.RoundTripper {
	return roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		d, _ := httputil.DumpRequestOut(r, true)
		log.Debug().Str("request", maskToken(d)).Msg("HTTP request")
		res, err := u.RoundTrip(r)
		if err == nil {
			d, _ := httputil.DumpResponse(res, true)
			log.Debug().Str("response", string(d)).Msg("HTTP response")
		}
		return res, err
	})
}

func maskToken(dump []byte) string {
	return authHeader.ReplaceAllString(string(dump), "${1}***")
}
