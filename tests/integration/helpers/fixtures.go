// Package helpers provides common test utilities for integration tests.
//go:build integration
// +build integration

package helpers

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/piwi3910/catweave/internal/models"
)

// TestCatalogue creates a test catalogue payload with default values.
func TestCatalogue(name string) *models.Catalogue {
	return &models.Catalogue{
		ID:           fmt.Sprintf("cat-%s", uuid.New().String()[:8]),
		Abbreviation: name,
		Name:         fmt.Sprintf("Test catalogue: %s", name),
		Website:      "https://catalogue.example.org",
	}
}

// TestProvider creates a test provider payload owned by the given catalogue.
func TestProvider(catalogueID, name string) *models.Provider {
	return &models.Provider{
		ID:           fmt.Sprintf("prov-%s", uuid.New().String()[:8]),
		CatalogueID:  catalogueID,
		Abbreviation: name,
		Name:         fmt.Sprintf("Test provider: %s", name),
	}
}

// TestService creates a test service payload owned by the given provider.
func TestService(catalogueID, providerID, name string) *models.Service {
	return &models.Service{
		ID:                   fmt.Sprintf("svc-%s", uuid.New().String()[:8]),
		CatalogueID:          catalogueID,
		Name:                 fmt.Sprintf("Test service: %s", name),
		ResourceOrganisation: providerID,
	}
}

// TestTrainingResource creates a test training resource payload.
func TestTrainingResource(catalogueID, providerID, title string) *models.TrainingResource {
	return &models.TrainingResource{
		ID:                   fmt.Sprintf("tr-%s", uuid.New().String()[:8]),
		CatalogueID:          catalogueID,
		Title:                fmt.Sprintf("Test training resource: %s", title),
		ResourceOrganisation: providerID,
	}
}
