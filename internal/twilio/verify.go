package twilio

import (
	"errors"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go/client"
)

const signatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("missing " + signatureHeader + " header")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrAccountMismatch  = errors.New("callback is for a different account")
)

// Verifier checks that a webhook request was signed with the account's auth token.
type Verifier struct {
	validator  client.RequestValidator
	accountSID string
	baseURL    string
}

// NewVerifier builds a Verifier. baseURL is the public URL prefix Twilio
// calls; when empty it is rebuilt from the request. An empty accountSID
// skips the AccountSid check.
func NewVerifier(authToken, accountSID, baseURL string) *Verifier {
	return &Verifier{
		validator:  client.NewRequestValidator(authToken),
		accountSID: accountSID,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// Verify expects r.ParseForm to have been called.
func (v *Verifier) Verify(r *http.Request) error {
	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return ErrMissingSignature
	}

	params := make(map[string]string, len(r.PostForm))
	for k, vals := range r.PostForm {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}

	if !v.validator.Validate(v.requestURL(r), params, signature) {
		return ErrInvalidSignature
	}
	if v.accountSID != "" && params["AccountSid"] != v.accountSID {
		return ErrAccountMismatch
	}
	return nil
}

func (v *Verifier) requestURL(r *http.Request) string {
	base := v.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + r.URL.RequestURI()
}
