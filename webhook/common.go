package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// Header names used by the supported providers.
const (
	signatureHeader   = "X-Hub-Signature-256"
	gitlabTokenHeader = "X-Gitlab-Token"
)

// verifySignature checks an HMAC-SHA256 hex signature of the raw body
// against the shared secret. The header value must carry the sha256=
// prefix. Comparison is constant time.
func verifySignature(secret, body []byte, header string) bool {
	if len(secret) == 0 {
		return false
	}
	digest, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	provided, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// verifyToken compares a shared token header byte for byte in constant
// time. GitLab sends the secret verbatim instead of signing the body.
func verifyToken(secret []byte, header string) bool {
	if len(secret) == 0 || header == "" {
		return false
	}
	return subtle.ConstantTimeCompare(secret, []byte(header)) == 1
}

// requestID keeps an upstream X-Request-Id when present and mints one
// otherwise.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return watermill.NewShortUUID()
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// unauthorized is the single 401 shape. Unknown sources, missing
// headers, and bad signatures all look identical to the caller.
func unauthorized(w http.ResponseWriter) {
	respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
}
