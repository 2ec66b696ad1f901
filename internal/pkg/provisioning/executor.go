package provisioning

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/hirestack/hirestack/app/models"
	"github.com/hirestack/hirestack/internal/pkg/env"
)

// ProvisionResult carries the provider resource identifiers of a freshly
// created instance.
type ProvisionResult struct {
	ProjectID string
	ServiceID string
	Domain    string
}

// Executor performs the actual cloud-provider calls for an install: create
// project and services, configure environment, trigger deploy. The queue
// treats it as an opaque collaborator; implementations live outside this
// repository and are selected via PROVIDER_DRIVER.
type Executor interface {
	Provision(ctx context.Context, install *models.Install) (*ProvisionResult, error)
	Deprovision(ctx context.Context, install *models.Install) error
}

// NewExecutorFromEnv resolves the configured executor driver. Only the dev
// driver ships in-tree; real drivers are registered by the deployment build.
func NewExecutorFromEnv() Executor {
	driver := env.GetEnv("PROVIDER_DRIVER", "dev")
	if driver != "dev" {
		panic(fmt.Sprintf("unknown provider driver %q", driver))
	}
	return &devExecutor{}
}

// devExecutor fakes a provider for local development: it allocates ids and
// succeeds without calling anything.
type devExecutor struct{}

func (e *devExecutor) Provision(ctx context.Context, install *models.Install) (*ProvisionResult, error) {
	res := &ProvisionResult{
		ProjectID: "prj_" + uuid.NewString(),
		ServiceID: "svc_" + uuid.NewString(),
		Domain:    fmt.Sprintf("install-%d.dev.hirestack.app", install.ID),
	}
	log.Infof("[DevExecutor] provisioned install %d as %s (%s)", install.ID, res.ProjectID, res.Domain)
	return res, nil
}

func (e *devExecutor) Deprovision(ctx context.Context, install *models.Install) error {
	log.Infof("[DevExecutor] deprovisioned install %d (%s)", install.ID, install.ProviderProjectID)
	return nil
}
