package database

import (
	"net/url"
	"strings"
)

// ConstructDatabaseURL joins a server URL and a database name.
//
// An empty databaseName returns baseURL untouched. Otherwise the path of
// baseURL is replaced with the database name and sslmode=disable is added
// unless the URL already sets an sslmode.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return baseURL
	}

	u.Path = "/" + databaseName

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()

	return u.String()
}
