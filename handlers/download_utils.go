package handlers

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
)

// setContentDisposition sets the Content-Disposition header with RFC 5987
// encoding so non-ASCII display names survive every browser.
func setContentDisposition(c echo.Context, filename string) {
	asciiName := sanitizeToASCII(filename)

	// PathEscape keeps spaces as %20; RFC 5987 wants percent-encoding,
	// not form encoding.
	encoded := url.PathEscape(filename)

	c.Response().Header().Set("Content-Disposition",
		`attachment; filename="`+asciiName+`"; filename*=UTF-8''`+encoded)
}

// sanitizeToASCII maps every rune outside printable ASCII to an
// underscore and replaces double quotes so the quoted filename can
// never break the header. Names with nothing left fall back to a
// generic one.
func sanitizeToASCII(filename string) string {
	ascii := strings.Map(func(r rune) rune {
		if r == '"' || r > unicode.MaxASCII {
			return '_'
		}
		return r
	}, filename)

	if strings.Trim(ascii, "_") == "" {
		return "download"
	}
	return ascii
}
