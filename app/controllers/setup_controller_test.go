package controllers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/database"
	"github.com/hirestack/hirestack/internal/pkg/provisioning"
)

func seedInstall(t *testing.T, db *gorm.DB, orderID string, status models.InstallStatus) *models.Install {
	t.Helper()

	purchase := seedPendingPurchase(t, db, orderID)
	install := &models.Install{
		CustomerID: purchase.CustomerID,
		PurchaseID: purchase.ID,
		Status:     status,
	}
	require.NoError(t, db.Create(install).Error)
	return install
}

func newSetupApp(t *testing.T) *fiber.App {
	t.Helper()
	t.Setenv("SETUP_SECRET_KEY", "controller-test-secret")

	app := fiber.New()
	app.Post("/setup/:token", HandleSetupRedeem)
	return app
}

func issueToken(t *testing.T, db *gorm.DB, installID uint) string {
	t.Helper()
	issuer, err := provisioning.NewSetupTokenIssuer(db, "controller-test-secret", time.Hour)
	require.NoError(t, err)
	token, err := issuer.Issue(installID)
	require.NoError(t, err)
	return token
}

func TestHandleSetupRedeem(t *testing.T) {
	db := newTestDB(t)
	database.SetDB(db)
	app := newSetupApp(t)

	install := seedInstall(t, db, "order_setup_1", models.InstallStatusSetupPending)
	token := issueToken(t, db, install.ID)

	resp, err := app.Test(httptest.NewRequest("POST", "/setup/"+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decodeBody(t, resp.Body)["session_secret"])

	var got models.Install
	require.NoError(t, db.First(&got, install.ID).Error)
	assert.Equal(t, models.InstallStatusActive, got.Status)

	// A second redemption of the same token conflicts.
	resp, err = app.Test(httptest.NewRequest("POST", "/setup/"+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "token_already_used", decodeBody(t, resp.Body)["error"])
}

func TestHandleSetupRedeemUnknownToken(t *testing.T) {
	database.SetDB(newTestDB(t))
	app := newSetupApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/setup/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHandleSetupRedeemExpiredToken(t *testing.T) {
	db := newTestDB(t)
	database.SetDB(db)
	app := newSetupApp(t)

	install := seedInstall(t, db, "order_setup_exp", models.InstallStatusSetupPending)
	token := issueToken(t, db, install.ID)
	require.NoError(t, db.Model(&models.SetupToken{}).Where("install_id = ?", install.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	resp, err := app.Test(httptest.NewRequest("POST", "/setup/"+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
	assert.Equal(t, "token_expired", decodeBody(t, resp.Body)["error"])
}
