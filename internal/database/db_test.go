package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/account-api/internal/config"
)

func TestDSN(t *testing.T) {
	cfg := config.Config{DBUser: "app", DBPass: "pw", DBHost: "db", DBPort: "3306", DBName: "accounts"}
	assert.Equal(t, "app:pw@tcp(db:3306)/accounts?charset=utf8mb4&parseTime=true&loc=UTC", DSN(cfg))
}

func TestDSNWithoutPassword(t *testing.T) {
	cfg := config.Config{DBUser: "app", DBHost: "localhost", DBPort: "3307", DBName: "accounts"}
	assert.Equal(t, "app@tcp(localhost:3307)/accounts?charset=utf8mb4&parseTime=true&loc=UTC", DSN(cfg))
}
