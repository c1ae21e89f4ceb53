package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Signer turns an unsigned parameter set into a signed one. It may add
// parameters to params in place and may return headers to send with the call.
type Signer interface {
	Sign(params url.Values) (http.Header, error)
}

var ErrMissingSecret = errors.New("catalog: secret key is empty")

// HashSigner signs with an MD5 digest over the sorted parameters wrapped by
// the account secret, written to the "sign" parameter in upper-case hex.
type HashSigner struct {
	SecretKey string
}

func NewHashSigner(secretKey string) *HashSigner {
	return &HashSigner{SecretKey: secretKey}
}

func (s *HashSigner) Sign(params url.Values) (http.Header, error) {
	if s == nil || s.SecretKey == "" {
		return nil, ErrMissingSecret
	}
	params.Del("sign")
	sum := md5.Sum([]byte(s.SecretKey + canonical(params) + s.SecretKey))
	params.Set("sign", strings.ToUpper(hex.EncodeToString(sum[:])))
	return nil, nil
}

// canonical joins k=v pairs sorted by key. Keys without values are skipped.
func canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k, vs := range params {
		if len(vs) == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(params[k], ","))
	}
	return b.String()
}

// NopSigner leaves params untouched.
type NopSigner struct{}

func (NopSigner) Sign(url.Values) (http.Header, error) { return nil, nil }
