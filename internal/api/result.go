package api

import "net/http"

// outcome classifies the result of a request independently of HTTP.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeInvalid
	outcomeNotFound
	outcomeMethodNotAllowed
	outcomeTooLarge
	outcomeRateLimited
	outcomeInternal
)

func (o outcome) status() int {
	switch o {
	case outcomeOK:
		return http.StatusOK
	case outcomeInvalid:
		return http.StatusBadRequest
	case outcomeNotFound:
		return http.StatusNotFound
	case outcomeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case outcomeTooLarge:
		return http.StatusRequestEntityTooLarge
	case outcomeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// result is what a route handler returns. For outcomeOK body is the response
// body; otherwise it is a short error message.
type result struct {
	outcome outcome
	body    string
}

func success(body string) result { return result{outcome: outcomeOK, body: body} }
func invalid(msg string) result  { return result{outcome: outcomeInvalid, body: msg} }
func methodNotAllowed() result   { return result{outcome: outcomeMethodNotAllowed, body: "method not allowed"} }
func rateLimited() result        { return result{outcome: outcomeRateLimited, body: "rate limit exceeded"} }
func internal() result           { return result{outcome: outcomeInternal, body: "internal server error"} }

// writeResult encodes res onto w.
func writeResult(w http.ResponseWriter, res result) {
	if res.outcome != outcomeOK {
		http.Error(w, res.body, res.outcome.status())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if res.body != "" {
		w.Write([]byte(res.body))
	}
}
