package sqlbuilder

import (
	"errors"
	"testing"
)

func TestValidateSQLRejections(t *testing.T) {
	bad := []string{
		"SELECT * FROM users; DROP TABLE users",
		"SELECT * FROM users WHERE id = 1 -- comment",
		"SELECT * FROM users /* hidden */",
		"SELECT name FROM users UNION SELECT password FROM users",
		"SELECT LOAD_FILE('/etc/passwd')",
		"SELECT * FROM users INTO OUTFILE '/tmp/x'",
		"CREATE TABLE evil (id int)",
		"GRANT ALL ON users TO intruder",
	}
	for _, sql := range bad {
		if err := ValidateSQL(sql); !errors.Is(err, ErrStatementRejected) {
			t.Fatalf("expected rejection for %q, got %v", sql, err)
		}
	}
}

func TestValidateSQLAcceptsBuilderOutput(t *testing.T) {
	good := []string{
		"SELECT id, name FROM users WHERE role = ? ORDER BY name ASC LIMIT 10",
		"INSERT INTO users (name, age) VALUES (?, ?)",
		"UPDATE sessions SET is_active = ? WHERE expires_at < ?",
		"DELETE FROM sessions WHERE user_id = ?",
	}
	for _, sql := range good {
		if err := ValidateSQL(sql); err != nil {
			t.Fatalf("unexpected rejection for %q: %v", sql, err)
		}
	}
}
