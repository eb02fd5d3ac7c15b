package sqlstore

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
)

var keywordPassword = regexp.MustCompile(`(password=)(?:'[^']*'|\S+)`)

// Params are discrete connection parameters for a PostgreSQL server.
type Params struct {
	User     string
	Password string
	Host     string
	Port     int
	Name     string
	SSLMode  string
}

// PostgresDSN builds a postgres:// URL from p. Empty fields are left out.
func PostgresDSN(p Params) string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}

	if p.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(p.Port))
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + p.Name,
	}

	switch {
	case p.User != "" && p.Password != "":
		u.User = url.UserPassword(p.User, p.Password)
	case p.User != "":
		u.User = url.User(p.User)
	}

	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}

	return u.String()
}

// RedactDSN hides the password in URL and keyword/value DSNs.
func RedactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Redacted()
	}

	return keywordPassword.ReplaceAllString(dsn, "${1}xxxxx")
}
