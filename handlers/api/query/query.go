package query

import (
	"encoding/json"
	"net/http"
	"notebook-server/core"
	"regexp"
	"strings"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

var selectOnly = regexp.MustCompile(`(?is)^\s*SELECT\s`)

type Request struct {
	Query string `json:"query"`
}

// Allowed reports whether q is a statement the query runner will execute:
// a single SELECT, optionally ended by one semicolon.
func Allowed(q string) bool {
	return selectOnly.MatchString(q) && strings.TrimSpace(tailAfterStatement(q)) == ""
}

// tailAfterStatement returns whatever follows the first semicolon outside
// quoted strings and identifiers.
func tailAfterStatement(q string) string {
	var quote rune
	for i, c := range q {
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == ';':
			return q[i+1:]
		}
	}
	return ""
}

// HandleQuery runs a SELECT statement and returns its rows.
func HandleQuery(runner core.QueryRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithField("error", err).Error("Failed to decode request")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}

		sql := strings.TrimSpace(req.Query)
		if !Allowed(sql) {
			logrus.WithField("query", sql).Warn("Rejected non-SELECT query")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Only SELECT queries are allowed"})
			return
		}

		result, err := runner.RunQuery(r.Context(), sql)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Query error: " + err.Error()})
			return
		}

		render.JSON(w, r, result)
	}
}

// HandleSeed resets the demo tables the query runner is meant to explore.
func HandleSeed(runner core.QueryRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := runner.SeedDemoData(r.Context()); err != nil {
			logrus.WithField("error", err).Error("Failed to seed demo data")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to seed demo data"})
			return
		}

		render.JSON(w, r, map[string]string{"status": "seeded"})
	}
}
