package catalog_test

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/raysh454/thumbscan/internal/catalog"
)

func TestHashSigner_Sign(t *testing.T) {
	t.Parallel()
	params := url.Values{"userid": {"u1"}, "page": {"2"}, "ptime": {"1700000000000"}, "skip": nil}
	s := catalog.NewHashSigner("sk")
	if _, err := s.Sign(params); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	sum := md5.Sum([]byte("sk" + "page=2&ptime=1700000000000&userid=u1" + "sk"))
	want := strings.ToUpper(hex.EncodeToString(sum[:]))
	if got := params.Get("sign"); got != want {
		t.Errorf("expected sign %s, got %s", want, got)
	}

	// Signing again must ignore the previous signature.
	if _, err := s.Sign(params); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got := params.Get("sign"); got != want {
		t.Errorf("re-sign changed signature: %s", got)
	}
}

func TestHashSigner_MissingSecret(t *testing.T) {
	t.Parallel()
	_, err := catalog.NewHashSigner("").Sign(url.Values{})
	if !errors.Is(err, catalog.ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}
