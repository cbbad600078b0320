package httpx

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

func bufferLogger(w io.Writer) zerolog.Logger { return zerolog.New(w) }

type keyEcho struct{}

func (keyEcho) Localize(_ *http.Request, key string) string { return "msg:" + key }

func newGet(target string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, target, nil)
	return req
}
